// Package csrf issues and checks the per-session anti-forgery token that
// every state-changing request must echo back.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/localvakil/vakil/pkg/session"
	"github.com/localvakil/vakil/pkg/verr"
)

const tokenBytes = 32

// Saver persists a session after the token is created.
type Saver interface {
	Save(ctx context.Context, st *session.State) error
}

type Guard struct {
	sessions Saver
}

func NewGuard(sessions Saver) *Guard {
	return &Guard{sessions: sessions}
}

// Issue returns the session's token, creating and persisting one on first
// use. The token stays the same for the life of the session.
func (g *Guard) Issue(ctx context.Context, st *session.State) (string, error) {
	if st.CSRFToken != "" {
		return st.CSRFToken, nil
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating csrf token: %w", err)
	}
	st.SetCSRFToken(hex.EncodeToString(buf))

	if err := g.sessions.Save(ctx, st); err != nil {
		return "", err
	}
	return st.CSRFToken, nil
}

// Validate reports whether candidate matches the session's token. A session
// without a token rejects everything.
func (g *Guard) Validate(st *session.State, candidate string) bool {
	if st == nil || st.CSRFToken == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(st.CSRFToken), []byte(candidate)) == 1
}

// Check is Validate as an error, for handlers that bail out early.
func (g *Guard) Check(st *session.State, candidate string) error {
	if !g.Validate(st, candidate) {
		return verr.Errorf(verr.CodeCSRFMismatch, "csrf token mismatch")
	}
	return nil
}

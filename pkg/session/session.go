// Package session keeps per-browser state on the server. The browser only
// holds an opaque, host-only, HttpOnly cookie naming a record in the kv store.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/localvakil/vakil/pkg/kv"
	"github.com/localvakil/vakil/pkg/vlog"
)

const (
	kvPrefixSession = "session:"

	DefaultCookieName = "vakil_session"
	DefaultTTL        = 24 * time.Hour
)

// ErrCorrupt is returned by Load when a stored record cannot be decoded.
var ErrCorrupt = errors.New("session: corrupt record")

type Config struct {
	CookieName string
	TTL        time.Duration
	// Secure forces the Secure cookie attribute regardless of how the
	// request arrived.
	Secure bool
}

type Manager struct {
	store  kv.Store
	cfg    Config
	logger *vlog.Logger
}

func NewManager(store kv.Store, cfg Config, logger *vlog.Logger) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = vlog.NewDefault()
	}
	return &Manager{store: store, cfg: cfg, logger: logger}
}

func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

// Load fetches the record for id. It returns kv.ErrNotFound for unknown or
// expired sessions.
func (m *Manager) Load(ctx context.Context, id string) (*State, error) {
	if id == "" {
		return nil, kv.ErrNotFound
	}
	raw, err := m.store.Get(ctx, kvPrefixSession+id)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	st.ID = id
	return &st, nil
}

// Save persists st under its current id and resets its TTL.
func (m *Manager) Save(ctx context.Context, st *State) error {
	if st.destroyed {
		return nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := m.store.Set(ctx, kvPrefixSession+st.ID, raw, m.cfg.TTL); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	st.changed = false
	if st.fresh {
		st.fresh = false
		st.cookie = true
	}
	return nil
}

// Regenerate moves st to a fresh id and deletes the old record. It is
// called after login so an id seen before authentication is never valid
// afterwards.
func (m *Manager) Regenerate(ctx context.Context, st *State) error {
	oldID := st.ID

	id, err := newID()
	if err != nil {
		return err
	}
	st.ID = id
	st.destroyed = false
	st.cookie = true

	if err := m.Save(ctx, st); err != nil {
		return err
	}
	if oldID != "" {
		if err := m.store.Delete(ctx, kvPrefixSession+oldID); err != nil {
			m.logger.Warn("failed to delete previous session", "error", err)
		}
	}
	return nil
}

// Destroy deletes the record and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, st *State) error {
	if err := m.store.Delete(ctx, kvPrefixSession+st.ID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	st.destroyed = true
	st.cookie = true
	st.changed = false
	return nil
}

// Cookie builds the Set-Cookie value for st as seen by r.
func (m *Manager) Cookie(r *http.Request, st *State) *http.Cookie {
	c := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    st.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.cfg.Secure || isHTTPS(r),
		MaxAge:   int(m.cfg.TTL / time.Second),
	}
	if st.destroyed {
		c.Value = ""
		c.MaxAge = -1
	}
	return c
}

// start resolves the state for r: the existing record when the cookie names
// an initiated session, otherwise a new one under a fresh id. A new session
// is only stored, and its cookie only issued, once something is saved in it.
func (m *Manager) start(ctx context.Context, r *http.Request) (*State, error) {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil && c.Value != "" {
		st, err := m.resume(ctx, c.Value)
		if err != nil {
			return nil, err
		}
		if st != nil {
			return st, nil
		}
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}
	return &State{ID: id, Initiated: true, fresh: true}, nil
}

// resume loads and touches an existing session. It returns nil, nil when id
// names nothing usable.
func (m *Manager) resume(ctx context.Context, id string) (*State, error) {
	st, err := m.Load(ctx, id)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if errors.Is(err, ErrCorrupt) {
		m.logger.Warn("discarding unreadable session", "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !st.Initiated {
		return nil, nil
	}

	if err := m.store.Touch(ctx, kvPrefixSession+id, m.cfg.TTL); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return st, nil
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

func newID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

type ctxKey struct{}

// WithState returns a context carrying st.
func WithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, ctxKey{}, st)
}

// FromContext returns the request's session, or nil outside the middleware.
func FromContext(ctx context.Context) *State {
	st, _ := ctx.Value(ctxKey{}).(*State)
	return st
}

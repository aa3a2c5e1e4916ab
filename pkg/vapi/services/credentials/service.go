// Package credentials stores the user's own Gemini API key, encrypted.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localvakil/vakil/pkg/db/models"
	"github.com/localvakil/vakil/pkg/vcrypt"
	"github.com/localvakil/vakil/pkg/verr"
	"github.com/uptrace/bun"
)

const (
	MessageSaved     = "API Key saved successfully!"
	MessageUnchanged = "API Key is current or no changes made."
)

type Service struct {
	db   *bun.DB
	keys vcrypt.Encrypter
}

func NewService(db *bun.DB, keys vcrypt.Encrypter) *Service {
	return &Service{db: db, keys: keys}
}

// SaveAPIKey encrypts apiKey and stores it for the user. It reports whether
// a row was changed; a user that no longer exists is authentication_required.
func (s *Service) SaveAPIKey(ctx context.Context, userID uuid.UUID, apiKey string) (bool, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return false, verr.WithPublic(verr.CodeInvalidRequest, "API key cannot be empty.", errors.New("empty api key"))
	}

	envelope, err := s.keys.Encrypt(apiKey)
	if err != nil {
		return false, err
	}

	res, err := s.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("encrypted_api_key = ?", envelope).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return false, verr.WithPublic(verr.CodePersistence, "Failed to save API key to database.", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, verr.New(verr.CodePersistence, err)
	}
	if n == 0 {
		return false, verr.WithPublic(verr.CodeAuthenticationRequired, "Authentication required. Please login.",
			fmt.Errorf("user %s no longer exists", userID))
	}
	return true, nil
}

// HasAPIKey reports whether the user has a stored key.
func (s *Service) HasAPIKey(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.db.NewSelect().
		Model((*models.User)(nil)).
		Where("id = ?", userID).
		Where("encrypted_api_key IS NOT NULL").
		Where("encrypted_api_key <> ''").
		Exists(ctx)
}

// User loads the user record.
func (s *Service) User(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.NewSelect().Model(&user).Where("id = ?", userID).Scan(ctx); err != nil {
		return nil, err
	}
	return &user, nil
}

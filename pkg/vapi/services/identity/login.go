package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localvakil/vakil/pkg/db"
	"github.com/localvakil/vakil/pkg/db/models"
	"github.com/localvakil/vakil/pkg/verr"
	"golang.org/x/oauth2"
)

// Step names a stage of the login flow.
type Step string

const (
	StepAwaitingCode       Step = "awaiting_code"
	StepExchangingToken    Step = "exchanging_token"
	StepFetchingProfile    Step = "fetching_profile"
	StepResolvingUser      Step = "resolving_user"
	StepSessionEstablished Step = "session_established"
)

// LoginError reports the step at which a login failed. Err carries a verr
// code and the caller-safe message.
type LoginError struct {
	Step Step
	Err  error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login failed at %s: %v", e.Step, e.Err)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

func fail(step Step, err error) error {
	return &LoginError{Step: step, Err: err}
}

// Callback carries the query parameters Google sends to the redirect URI.
type Callback struct {
	Code  string
	State string
	Error string
}

// Profile is the subset of the userinfo response the app keeps.
type Profile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// Login runs the callback through token exchange, profile fetch and user
// resolution. sessionID must be the id of the session that started the
// login. The caller establishes the session with the returned user.
func (s *Service) Login(ctx context.Context, sessionID string, cb Callback) (*models.User, error) {
	if s.oauth == nil {
		return nil, fail(StepAwaitingCode, verr.New(verr.CodeConfiguration, ErrNotConfigured))
	}
	if cb.Code == "" || cb.Error != "" {
		reason := cb.Error
		if reason == "" {
			reason = "missing authorization code"
		}
		return nil, fail(StepAwaitingCode, verr.WithPublic(verr.CodeInvalidRequest,
			"Google login failed or was cancelled.", errors.New(reason)))
	}
	if _, err := s.ValidateState(ctx, cb.State, sessionID); err != nil {
		return nil, fail(StepAwaitingCode, verr.WithPublic(verr.CodeInvalidRequest,
			"Google login failed or was cancelled.", fmt.Errorf("state: %w", err)))
	}

	tok, err := s.Exchange(ctx, cb.Code)
	if err != nil {
		return nil, fail(StepExchangingToken, err)
	}

	profile, err := s.FetchProfile(ctx, tok)
	if err != nil {
		return nil, fail(StepFetchingProfile, err)
	}

	user, err := s.ResolveUser(ctx, profile)
	if err != nil {
		return nil, fail(StepResolvingUser, err)
	}

	return user, nil
}

func (s *Service) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.cfg.HTTPClient)
}

// Exchange trades the authorization code for tokens. Both an access token
// and an id_token are required.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if s.oauth == nil {
		return nil, verr.New(verr.CodeConfiguration, ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	tok, err := s.oauth.Exchange(s.withHTTPClient(ctx), code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	if idToken, _ := tok.Extra("id_token").(string); idToken == "" {
		return nil, verr.WithPublic(verr.CodeUpstreamMalformedResponse,
			"Authentication error (missing tokens). Please try again.",
			errors.New("token response has no id_token"))
	}
	return tok, nil
}

const exchangePublic = "Failed to authenticate with Google (token exchange). Please try again."

func classifyExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return verr.WithPublic(verr.CodeUpstreamRejected, exchangePublic, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "missing access_token") || strings.HasPrefix(msg, "oauth2: cannot parse") {
		return verr.WithPublic(verr.CodeUpstreamMalformedResponse,
			"Authentication error (missing tokens). Please try again.", err)
	}

	return verr.WithPublic(verr.CodeUpstreamUnreachable, exchangePublic, err)
}

type userInfo struct {
	Sub       string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
	Picture   string `json:"picture"`
}

const profilePublic = "Failed to retrieve user information from Google. Please try again."

// FetchProfile reads the userinfo endpoint with the access token.
func (s *Service) FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, verr.WithPublic(verr.CodeUpstreamUnreachable, profilePublic, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, verr.WithPublic(verr.CodeUpstreamUnreachable, profilePublic, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, verr.WithPublic(verr.CodeUpstreamUnreachable, profilePublic, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, verr.WithPublic(verr.CodeUpstreamRejected, profilePublic,
			fmt.Errorf("userinfo returned status %d: %s", resp.StatusCode, body))
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, verr.WithPublic(verr.CodeUpstreamMalformedResponse, profilePublic, err)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, verr.WithPublic(verr.CodeUpstreamMalformedResponse,
			"Could not retrieve essential user details from Google.",
			errors.New("userinfo response lacks sub or email"))
	}

	name := info.Name
	if name == "" {
		name = info.GivenName
	}
	return &Profile{
		Subject: info.Sub,
		Email:   info.Email,
		Name:    name,
		Picture: info.Picture,
	}, nil
}

// ResolveUser finds the user by Google subject and refreshes the profile,
// or creates the user. Repeated logins with the same subject always land on
// the same row.
func (s *Service) ResolveUser(ctx context.Context, p *Profile) (*models.User, error) {
	user, err := s.findByExternalID(ctx, p.Subject)
	if err == nil {
		s.refreshProfile(ctx, user, p)
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, verr.WithPublic(verr.CodePersistence, "Database error during login. Please try again.", err)
	}

	now := time.Now().UTC()
	user = &models.User{
		ID:         uuid.New(),
		ExternalID: p.Subject,
		Email:      p.Email,
		Name:       p.Name,
		AvatarURL:  optional(p.Picture),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = s.db.NewInsert().Model(user).Exec(ctx)
	switch {
	case err == nil:
		return user, nil
	case db.UniqueViolationOn(err, "external_id"):
		// Lost a race with a concurrent first login for the same subject.
		existing, findErr := s.findByExternalID(ctx, p.Subject)
		if findErr != nil {
			return nil, verr.WithPublic(verr.CodePersistence, "Database error during login. Please try again.", findErr)
		}
		s.refreshProfile(ctx, existing, p)
		return existing, nil
	case db.UniqueViolationOn(err, "email"):
		return nil, verr.New(verr.CodeDuplicateIdentity, err)
	default:
		return nil, verr.WithPublic(verr.CodePersistence, "Failed to create your account. Please try again.", err)
	}
}

func (s *Service) findByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	err := s.db.NewSelect().
		Model(&user).
		Where("external_id = ?", externalID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// refreshProfile updates name, email and avatar. A failure here does not
// block the login; the stale profile is kept.
func (s *Service) refreshProfile(ctx context.Context, user *models.User, p *Profile) {
	prev := *user

	user.Name = p.Name
	user.Email = p.Email
	user.AvatarURL = optional(p.Picture)
	user.UpdatedAt = time.Now().UTC()

	_, err := s.db.NewUpdate().
		Model(user).
		Column("name", "email", "avatar_url", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		s.logger.Warn("failed to refresh user profile", "user_id", user.ID, "error", err)
		*user = prev
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

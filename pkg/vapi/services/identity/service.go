// Package identity turns a Google OAuth callback into a local user and an
// authenticated session.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/localvakil/vakil/pkg/kv"
	"github.com/localvakil/vakil/pkg/vlog"
	"github.com/uptrace/bun"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// StateIssuer is the issuer claim on OAuth state tokens.
	StateIssuer = "vakil"

	DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	DefaultTimeout     = 30 * time.Second
	DefaultStateTTL    = 10 * time.Minute

	kvPrefixState = "auth:state:"
)

var (
	ErrNotConfigured    = errors.New("google oauth is not configured")
	ErrStateAlreadyUsed = errors.New("state already used or expired")
	ErrStateSession     = errors.New("state was issued to a different session")
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides; empty values use Google's.
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	StateSecret []byte
	StateTTL    time.Duration
	Timeout     time.Duration

	// HTTPClient is used for the token exchange and the userinfo call.
	HTTPClient *http.Client
}

// Service holds the OAuth client configuration and the stores the login
// flow writes to.
type Service struct {
	oauth  *oauth2.Config
	cfg    Config
	db     *bun.DB
	kv     kv.Store
	logger *vlog.Logger
}

// StateClaims is the short-lived JWT used as the OAuth state parameter. It
// binds the login attempt to the session that started it.
type StateClaims struct {
	StateID   string `json:"sid"`
	SessionID string `json:"ses"`
	jwt.RegisteredClaims
}

func NewService(cfg Config, db *bun.DB, store kv.Store, logger *vlog.Logger) *Service {
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = vlog.NewDefault()
	}

	var oauthCfg *oauth2.Config
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		endpoint := google.Endpoint
		if cfg.AuthURL != "" {
			endpoint.AuthURL = cfg.AuthURL
		}
		if cfg.TokenURL != "" {
			endpoint.TokenURL = cfg.TokenURL
		}
		endpoint.AuthStyle = oauth2.AuthStyleInParams

		oauthCfg = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		}
	}

	return &Service{
		oauth:  oauthCfg,
		cfg:    cfg,
		db:     db,
		kv:     store,
		logger: logger,
	}
}

func (s *Service) Configured() bool {
	return s.oauth != nil
}

// AuthorizeURL starts a login for the given session and returns the Google
// consent URL to redirect to.
func (s *Service) AuthorizeURL(ctx context.Context, sessionID string) (string, error) {
	if s.oauth == nil {
		return "", ErrNotConfigured
	}
	state, err := s.GenerateState(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	), nil
}

// GenerateState builds a signed, short-lived JWT to be used as the OAuth
// `state` parameter. The state id is stored in KV for single-use validation.
func (s *Service) GenerateState(ctx context.Context, sessionID string) (string, error) {
	stateID, err := generateRandomString(32)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := StateClaims{
		StateID:   stateID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    StateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.StateTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.cfg.StateSecret)
	if err != nil {
		return "", err
	}

	if err := s.kv.Set(ctx, kvPrefixState+stateID, []byte(sessionID), s.cfg.StateTTL); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}

	return signedToken, nil
}

// ValidateState verifies the HMAC signature, expiry and session binding of
// a state token and consumes it. A state can be validated at most once.
func (s *Service) ValidateState(ctx context.Context, state, sessionID string) (*StateClaims, error) {
	parsed, err := jwt.ParseWithClaims(state, &StateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.StateSecret, nil
	}, jwt.WithIssuer(StateIssuer))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*StateClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid state token")
	}

	// Take deletes the entry, so a replayed state finds nothing.
	if _, err := s.kv.Take(ctx, kvPrefixState+claims.StateID); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrStateAlreadyUsed
		}
		return nil, fmt.Errorf("failed to validate state: %w", err)
	}

	if claims.SessionID != sessionID {
		return nil, ErrStateSession
	}

	return claims, nil
}

func generateRandomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}

package services

import (
	"net/http"

	"github.com/localvakil/vakil/pkg/csrf"
	"github.com/localvakil/vakil/pkg/gemini"
	"github.com/localvakil/vakil/pkg/kv"
	"github.com/localvakil/vakil/pkg/session"
	"github.com/localvakil/vakil/pkg/vapi/config"
	"github.com/localvakil/vakil/pkg/vapi/services/chat"
	"github.com/localvakil/vakil/pkg/vapi/services/credentials"
	"github.com/localvakil/vakil/pkg/vapi/services/identity"
	"github.com/localvakil/vakil/pkg/vcrypt"
	"github.com/localvakil/vakil/pkg/vlog"
	"github.com/uptrace/bun"
)

type Container struct {
	Sessions    *session.Manager
	CSRF        *csrf.Guard
	Identity    *identity.Service
	Chat        *chat.Service
	Credentials *credentials.Service
	Keys        *vcrypt.Service

	LandingURL string
	Logger     *vlog.Logger
}

func NewServices(cfg *config.EnvConfig, db *bun.DB, kvStore kv.Store, logger *vlog.Logger) (*Container, error) {
	keys := vcrypt.NewService(vcrypt.NewFileKey(cfg.EncryptionKeyPath))

	gen, err := gemini.New(gemini.Config{
		Backend:    cfg.GeminiBackend,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: cfg.GenerationTimeout},
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(kvStore, session.Config{
		CookieName: cfg.SessionCookieName,
		TTL:        cfg.SessionTTL,
		Secure:     cfg.CookieSecure,
	}, logger)

	identitySvc := identity.NewService(identity.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURI(),
		AuthURL:      cfg.GoogleAuthURL,
		TokenURL:     cfg.GoogleTokenURL,
		UserInfoURL:  cfg.GoogleUserInfoURL,
		StateSecret:  []byte(cfg.AuthSecret),
		StateTTL:     cfg.OAuthStateTTL,
		Timeout:      cfg.OAuthTimeout,
	}, db, kvStore, logger)

	return &Container{
		Sessions:    sessions,
		CSRF:        csrf.NewGuard(sessions),
		Identity:    identitySvc,
		Chat:        chat.NewService(db, keys, gen, cfg.GenerationTimeout, logger),
		Credentials: credentials.NewService(db, keys),
		Keys:        keys,
		LandingURL:  cfg.LandingURL,
		Logger:      logger,
	}, nil
}

// EmptyServices returns a container with no backing services, enough to
// register routes for OpenAPI generation.
func EmptyServices() *Container {
	return &Container{
		LandingURL: "/",
		Logger:     vlog.NewDiscard(),
	}
}

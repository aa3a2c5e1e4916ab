package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/localvakil/vakil/pkg/db"
	"github.com/localvakil/vakil/pkg/vapi/utils"
)

type EnvConfig struct {
	Port        string `envconfig:"PORT" default:"3000"`
	BaseURL     string `envconfig:"BASE_URL" required:"true"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	AuthSecret  string `envconfig:"AUTH_SECRET" required:"true"`
	LandingURL  string `envconfig:"LANDING_URL" default:"/"`

	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `envconfig:"GOOGLE_REDIRECT_URI"`
	GoogleAuthURL      string `envconfig:"GOOGLE_AUTH_URL"`
	GoogleTokenURL     string `envconfig:"GOOGLE_TOKEN_URL"`
	GoogleUserInfoURL  string `envconfig:"GOOGLE_USERINFO_URL"`

	EncryptionKeyPath string `envconfig:"ENCRYPTION_KEY_PATH" required:"true"`

	DBDriver   string `envconfig:"DB_DRIVER" default:"postgres"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"vakil"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"password"`
	DBName     string `envconfig:"DB_NAME" default:"vakil"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBPath     string `envconfig:"DB_PATH" default:"vakil.db"`
	DBDebug    bool   `envconfig:"DB_DEBUG" default:"false"`

	// Empty ValkeyAddr keeps sessions in process memory.
	ValkeyAddr     string `envconfig:"VALKEY_ADDR"`
	ValkeyPassword string `envconfig:"VALKEY_PASSWORD"`
	ValkeyDB       int    `envconfig:"VALKEY_DB" default:"0"`

	SessionTTL        time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SessionCookieName string        `envconfig:"SESSION_COOKIE_NAME" default:"vakil_session"`
	CookieSecure      bool          `envconfig:"COOKIE_SECURE" default:"false"`

	OAuthTimeout  time.Duration `envconfig:"OAUTH_TIMEOUT" default:"30s"`
	OAuthStateTTL time.Duration `envconfig:"OAUTH_STATE_TTL" default:"10m"`

	GeminiBackend     string        `envconfig:"GEMINI_BACKEND" default:"rest"`
	GeminiModel       string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash-latest"`
	GeminiBaseURL     string        `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"60s"`
}

func ValidateEnv() (*EnvConfig, error) {
	if utils.IsDev() {
		if err := godotenv.Load(); err != nil {
			log.Println("ℹ No .env file found")
		} else {
			log.Println("✓ Loaded .env file")
		}
	}

	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return &cfg, nil
}

// Validate returns every problem found in c, one line each.
func (c *EnvConfig) Validate() []string {
	var errors []string

	if len(c.AuthSecret) < 32 {
		errors = append(errors, "  ❌ AUTH_SECRET must be at least 32 characters")
	}

	if (c.GoogleClientID != "" && c.GoogleClientSecret == "") || (c.GoogleClientID == "" && c.GoogleClientSecret != "") {
		errors = append(errors, "  ❌ Both GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}

	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		errors = append(errors, "  ❌ BASE_URL must be a valid URL")
	}

	if c.GoogleRedirectURI != "" {
		if _, err := url.ParseRequestURI(c.GoogleRedirectURI); err != nil {
			errors = append(errors, "  ❌ GOOGLE_REDIRECT_URI must be a valid URL")
		}
	}

	if utils.IsProdEnv(c.Environment) && !strings.HasPrefix(c.BaseURL, "https://") && !c.CookieSecure {
		errors = append(errors, "  ❌ In production BASE_URL must use https or COOKIE_SECURE must be set")
	}

	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		errors = append(errors, "  ❌ DB_DRIVER must be one of postgres, sqlite")
	}

	if u, err := url.Parse(c.GeminiBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, "  ❌ GEMINI_BASE_URL must be an absolute URL")
	}

	switch c.GeminiBackend {
	case "rest", "sdk":
	default:
		errors = append(errors, "  ❌ GEMINI_BACKEND must be one of rest, sdk")
	}

	if c.SessionTTL <= 0 {
		errors = append(errors, "  ❌ SESSION_TTL must be positive")
	}
	if c.GenerationTimeout <= 0 || c.OAuthTimeout <= 0 {
		errors = append(errors, "  ❌ OAUTH_TIMEOUT and GENERATION_TIMEOUT must be positive")
	}

	return errors
}

// Database returns the connection settings for db.New.
func (c *EnvConfig) Database() db.Config {
	return db.Config{
		Driver:   c.DBDriver,
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Database: c.DBName,
		SSLMode:  c.DBSSLMode,
		Path:     c.DBPath,
		Debug:    c.DBDebug,
	}
}

// RedirectURI is the OAuth callback registered with Google.
func (c *EnvConfig) RedirectURI() string {
	if c.GoogleRedirectURI != "" {
		return c.GoogleRedirectURI
	}
	return strings.TrimRight(c.BaseURL, "/") + "/oauth2callback"
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *EnvConfig) Print(fmtr func(string, ...interface{})) {
	fmtr("📋 Configuration:\n")
	fmtr("  Environment: %s\n", c.Environment)
	fmtr("  Port: %s\n", c.Port)
	fmtr("  Base URL: %s\n", c.BaseURL)
	fmtr("  Auth Secret: %s\n", MaskSecret(c.AuthSecret))
	fmtr("  Encryption key: %s\n", setOrNot(c.EncryptionKeyPath))

	if c.DBDriver == "sqlite" {
		fmtr("  Database: sqlite (%s)\n", c.DBPath)
	} else {
		fmtr("  Database: %s@%s:%d/%s (sslmode=%s)\n", c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
	}

	if c.ValkeyAddr != "" {
		fmtr("  Sessions: valkey %s (db %d)\n", c.ValkeyAddr, c.ValkeyDB)
	} else {
		fmtr("  Sessions: in-memory\n")
	}
	fmtr("  Session TTL: %s\n", c.SessionTTL)

	if c.GoogleClientID != "" {
		fmtr("  Google OAuth: ✓ Enabled\n")
		fmtr("    Client ID: %s\n", MaskSecret(c.GoogleClientID))
		fmtr("    Client Secret: %s\n", MaskSecret(c.GoogleClientSecret))
		fmtr("    Redirect URI: %s\n", c.RedirectURI())
	} else {
		fmtr("  Google OAuth: ✗ Disabled\n")
	}

	fmtr("  Gemini: %s backend, model %s\n", c.GeminiBackend, c.GeminiModel)
}

func setOrNot(v string) string {
	if v == "" {
		return "<not set>"
	}
	return "✓ configured"
}

// Package gemini calls the Google Generative Language API on behalf of a
// user, with the user's own API key.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/localvakil/vakil/pkg/verr"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-flash-latest"
	DefaultTimeout = 60 * time.Second

	BackendREST = "rest"
	BackendSDK  = "sdk"

	// maxLoggedBody bounds how much of a rejected response is kept for logs.
	maxLoggedBody = 4096
	// maxResponseBody bounds how much of any response is read.
	maxResponseBody = 4 << 20
)

// Generator produces a single reply for a single prompt. Implementations
// classify every failure as upstream_unreachable, upstream_rejected or
// upstream_malformed_response and never retry.
type Generator interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

type Config struct {
	Backend    string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// New returns the Generator selected by cfg.Backend.
func New(cfg Config) (Generator, error) {
	switch cfg.Backend {
	case BackendREST, "":
		return NewRESTClient(cfg), nil
	case BackendSDK:
		return NewSDKClient(cfg), nil
	default:
		return nil, verr.Errorf(verr.CodeConfiguration, "unknown gemini backend %q", cfg.Backend)
	}
}

// RejectedError describes a non-success response. Body is the raw upstream
// payload and is meant for operator logs only.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gemini: upstream returned HTTP %d: %s", e.Status, e.Body)
}

func rejected(status int, body string) error {
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
	}
	return verr.WithPublic(verr.CodeUpstreamRejected, rejectedPublic(status),
		&RejectedError{Status: status, Body: body})
}

// rejectedPublic picks the user-facing text for a rejection by status.
func rejectedPublic(status int) string {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return "The AI service rejected the request. Please check your API key and try again."
	case status == http.StatusTooManyRequests:
		return "The AI service is receiving too many requests. Please wait a moment and try again."
	case status >= 500:
		return "The AI service is temporarily unavailable. Please try again."
	default:
		return "The AI service rejected the request. Please try again later."
	}
}

func withDefaults(cfg Config) Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return cfg
}

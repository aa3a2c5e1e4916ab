package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/localvakil/vakil/pkg/verr"
)

// SDKClient uses the official generative-ai-go client. Keys are per user,
// so a client is built for each call and closed afterwards.
type SDKClient struct {
	cfg Config
}

func NewSDKClient(cfg Config) *SDKClient {
	return &SDKClient{cfg: withDefaults(cfg)}
}

// SDKEndpoint turns a REST base URL into the host:port the gRPC transport
// dials. The path (e.g. /v1beta) is dropped; the port defaults to 443.
func SDKEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing gemini base url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("gemini base url %q has no host", baseURL)
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func (c *SDKClient) options(apiKey string) ([]option.ClientOption, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if c.cfg.BaseURL != DefaultBaseURL {
		endpoint, err := SDKEndpoint(c.cfg.BaseURL)
		if err != nil {
			return nil, verr.New(verr.CodeConfiguration, err)
		}
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts, nil
}

func (c *SDKClient) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	opts, err := c.options(apiKey)
	if err != nil {
		return "", err
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", verr.New(verr.CodeUpstreamUnreachable, fmt.Errorf("creating genai client: %w", err))
	}
	defer client.Close()

	model := client.GenerativeModel(c.cfg.Model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifySDKError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", verr.Errorf(verr.CodeUpstreamMalformedResponse, "gemini response has no candidates")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if txt, ok := p.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", verr.Errorf(verr.CodeUpstreamMalformedResponse, "gemini response has no text parts")
	}
	return b.String(), nil
}

func classifySDKError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return rejected(apiErr.Code, apiErr.Body)
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return verr.New(verr.CodeUpstreamMalformedResponse, err)
	}

	return verr.New(verr.CodeUpstreamUnreachable, err)
}

var _ Generator = (*SDKClient)(nil)

package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/localvakil/vakil/pkg/verr"
)

// RESTClient talks to generateContent over plain HTTP. The key travels in
// the x-goog-api-key header so it never appears in URLs or error strings.
type RESTClient struct {
	cfg Config
}

func NewRESTClient(cfg Config) *RESTClient {
	return &RESTClient{cfg: withDefaults(cfg)}
}

type part struct {
	Text *string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content *content `json:"content"`
	} `json:"candidates"`
}

func (c *RESTClient) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
}

func (c *RESTClient) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: &prompt}}}},
	})
	if err != nil {
		return "", verr.New(verr.CodeUpstreamUnreachable, fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", verr.New(verr.CodeUpstreamUnreachable, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", verr.New(verr.CodeUpstreamUnreachable, fmt.Errorf("calling gemini: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return "", verr.New(verr.CodeUpstreamUnreachable, fmt.Errorf("reading gemini response: %w", err))
	}
	if len(raw) > maxResponseBody {
		if resp.StatusCode != http.StatusOK {
			return "", rejected(resp.StatusCode, string(raw))
		}
		return "", verr.Errorf(verr.CodeUpstreamMalformedResponse, "gemini response exceeds %d bytes", maxResponseBody)
	}

	if resp.StatusCode != http.StatusOK {
		return "", rejected(resp.StatusCode, string(raw))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", verr.New(verr.CodeUpstreamMalformedResponse, fmt.Errorf("decoding gemini response: %w", err))
	}
	if len(out.Candidates) == 0 || out.Candidates[0].Content == nil ||
		len(out.Candidates[0].Content.Parts) == 0 || out.Candidates[0].Content.Parts[0].Text == nil {
		return "", verr.Errorf(verr.CodeUpstreamMalformedResponse, "gemini response has no candidate text")
	}

	return *out.Candidates[0].Content.Parts[0].Text, nil
}

var _ Generator = (*RESTClient)(nil)

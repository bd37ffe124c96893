// Package fetch is the JSON-over-HTTP client for the capture service. The
// service renders a URL (headless browser or plain GET on its side) and
// returns the capture document; this client stays agnostic to which.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"xaio/internal/services"
	"xaio/internal/stage"
	"xaio/internal/stages"
)

const defaultHTTPTimeout = 60 * time.Second

// Config captures the runtime settings for the capture service.
type Config struct {
	Endpoint       string
	TimeoutSeconds int
}

// Client speaks the capture service protocol: POST {"url": ...}, receive the
// capture document as the response body.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a capture service client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			Endpoint:       strings.TrimSpace(cfg.Endpoint),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Capture fetches one URL through the capture service.
func (c *Client) Capture(ctx context.Context, canonicalURL string) (stages.Document, error) {
	if c.cfg.Endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, stage.Capture, "capture request", "fetch endpoint is not configured", nil)
	}

	encoded, err := json.Marshal(map[string]string{"url": canonicalURL})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stage.Capture, "capture request", "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stage.Capture, "capture request", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stage.Capture, "capture request", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, stage.Capture, "capture request", "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var doc stages.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, stage.Capture, "capture response", "decode document", err)
	}
	return doc, nil
}

// statusError maps HTTP outcomes onto the pipeline error taxonomy so the
// runner's attempt budget applies only where a retry can help.
func statusError(status int, body []byte) error {
	detail := fmt.Sprintf("http %d: %s", status, summarizeBody(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, stage.Capture, "capture request", detail, nil)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusNotFound || status == http.StatusGone:
		return services.Wrap(services.ErrValidation, stage.Capture, "capture request", detail, nil)
	default:
		return services.Wrap(services.ErrTransient, stage.Capture, "capture request", detail, nil)
	}
}

func summarizeBody(body []byte) string {
	clean := strings.Join(strings.Fields(string(body)), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	if clean == "" {
		return "<empty>"
	}
	return clean
}

// Package publish is the JSON-over-HTTP client for the CMS ingest endpoint.
// Records are upserted by the pipeline's item key, so a retried publish
// updates the existing post instead of creating a duplicate.
package publish

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

const defaultHTTPTimeout = 30 * time.Second

// Config captures the runtime settings for the publish endpoint.
type Config struct {
	Endpoint       string
	APIKey         string
	PostStatus     string
	TimeoutSeconds int
}

// Client upserts merged records into the CMS.
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

// NewClient constructs a publish client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			Endpoint:       strings.TrimSpace(cfg.Endpoint),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			PostStatus:     strings.TrimSpace(cfg.PostStatus),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type upsertRequest struct {
	ExternalKey string          `json:"external_key"`
	Status      string          `json:"status,omitempty"`
	Record      stages.Document `json:"record"`
}

type upsertResponse struct {
	ID string `json:"id"`
}

// Upsert pushes one merged record keyed by the item key and returns the
// external publish id assigned by the CMS.
func (c *Client) Upsert(ctx context.Context, itemKey string, record stages.Document) (string, error) {
	if c.cfg.Endpoint == "" {
		return "", services.Wrap(services.ErrConfiguration, stage.Publish, "upsert request", "publish endpoint is not configured", nil)
	}

	encoded, err := json.Marshal(upsertRequest{
		ExternalKey: itemKey,
		Status:      c.cfg.PostStatus,
		Record:      record,
	})
	if err != nil {
		return "", services.Wrap(services.ErrValidation, stage.Publish, "upsert request", "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, stage.Publish, "upsert request", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stage.Publish, "upsert request", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stage.Publish, "upsert request", "read body", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusError(resp.StatusCode, body)
	}

	var parsed upsertResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrValidation, stage.Publish, "upsert response", "decode response", err)
	}
	if strings.TrimSpace(parsed.ID) == "" {
		return "", services.Wrap(services.ErrValidation, stage.Publish, "upsert response", "response carries no id", nil)
	}
	return strings.TrimSpace(parsed.ID), nil
}

func statusError(status int, body []byte) error {
	clean := strings.Join(strings.Fields(string(body)), " ")
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	detail := fmt.Sprintf("http %d: %s", status, clean)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, stage.Publish, "upsert request", detail, nil)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return services.Wrap(services.ErrValidation, stage.Publish, "upsert request", detail, nil)
	default:
		return services.Wrap(services.ErrTransient, stage.Publish, "upsert request", detail, nil)
	}
}

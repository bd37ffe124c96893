package stages

import (
	"context"
	"encoding/json"

	"xaio/internal/services"
	"xaio/internal/stage"
)

// Fetcher is the external content-capture collaborator (browser automation
// sidecar). The returned document is the raw capture JSON.
type Fetcher interface {
	Capture(ctx context.Context, canonicalURL string) (Document, error)
}

// Capture fetches the source page for a work item. Its upstream "artifact"
// is the intake document holding the canonical URL.
type Capture struct {
	fetcher Fetcher
}

// NewCapture constructs the capture adapter.
func NewCapture(fetcher Fetcher) *Capture {
	return &Capture{fetcher: fetcher}
}

func (c *Capture) Name() string { return stage.Capture }

func (c *Capture) Transform(ctx context.Context, in stage.Input) (stage.Output, error) {
	if c.fetcher == nil {
		return stage.Output{}, services.Wrap(services.ErrConfiguration, stage.Capture, "", "fetch service is not configured", nil)
	}

	url := in.Item.CanonicalKey
	if len(in.Upstream) > 0 {
		var intakeDoc Document
		if err := json.Unmarshal(in.Upstream, &intakeDoc); err == nil {
			if v := safeString(intakeDoc["canonical_url"]); v != "" {
				url = v
			}
		}
	}
	if url == "" {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Capture, "", "work item has no canonical url", nil)
	}

	captured, err := c.fetcher.Capture(ctx, url)
	if err != nil {
		return stage.Output{}, services.Wrap(nil, stage.Capture, "fetch", url, err)
	}
	if len(captured) == 0 {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Capture, "fetch", "empty capture document", nil)
	}
	return stage.Output{Document: captured}, nil
}

package stages

import (
	"context"
	"encoding/json"
	"time"

	"xaio/internal/services"
	"xaio/internal/stage"
)

// Publisher is the external CMS ingest collaborator. Upsert must be keyed by
// the item key so a retried publish updates rather than duplicates.
type Publisher interface {
	Upsert(ctx context.Context, itemKey string, record Document) (string, error)
}

// Publish pushes the merged record to the CMS and records the external id.
type Publish struct {
	publisher Publisher
}

// NewPublish constructs the publish adapter.
func NewPublish(publisher Publisher) *Publish {
	return &Publish{publisher: publisher}
}

func (p *Publish) Name() string { return stage.Publish }

func (p *Publish) Transform(ctx context.Context, in stage.Input) (stage.Output, error) {
	if p.publisher == nil {
		return stage.Output{}, services.Wrap(services.ErrConfiguration, stage.Publish, "", "publish service is not configured", nil)
	}

	var record Document
	if err := json.Unmarshal(in.Upstream, &record); err != nil {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Publish, "decode merged record", "", err)
	}

	publishID, err := p.publisher.Upsert(ctx, in.Item.ID, record)
	if err != nil {
		return stage.Output{}, services.Wrap(nil, stage.Publish, "upsert", "", err)
	}
	if publishID == "" {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Publish, "upsert", "publish target returned no id", nil)
	}

	receipt := Document{
		"publish_id":    publishID,
		"published_at":  time.Now().UTC().Format(time.RFC3339),
		"record_sha256": in.UpstreamHash,
	}
	return stage.Output{Document: receipt, PublishID: publishID}, nil
}

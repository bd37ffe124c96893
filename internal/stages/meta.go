package stages

import (
	"context"
	"encoding/json"

	"xaio/internal/services"
	"xaio/internal/stage"
)

// AiTransformer is the external structured-output AI collaborator.
type AiTransformer interface {
	Run(ctx context.Context, promptSetID string, input Document) (Document, error)
}

// Meta extracts structured metadata from the reduced envelope. The full body
// text is stripped before the call; metadata parsing only needs the page
// signals and drops the largest part of the prompt.
type Meta struct {
	ai          AiTransformer
	promptSetID string
}

// NewMeta constructs the meta adapter.
func NewMeta(ai AiTransformer, promptSetID string) *Meta {
	return &Meta{ai: ai, promptSetID: promptSetID}
}

func (m *Meta) Name() string { return stage.Meta }

func (m *Meta) Transform(ctx context.Context, in stage.Input) (stage.Output, error) {
	if m.ai == nil {
		return stage.Output{}, services.Wrap(services.ErrConfiguration, stage.Meta, "", "ai service is not configured", nil)
	}

	var envelope Document
	if err := json.Unmarshal(in.Upstream, &envelope); err != nil {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Meta, "decode envelope", "", err)
	}

	parsed, err := m.ai.Run(ctx, m.promptSetID, buildMetaInput(envelope))
	if err != nil {
		return stage.Output{}, services.Wrap(nil, stage.Meta, "ai transform", "", err)
	}
	if safeString(parsed["canonical_url"]) == "" {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Meta, "ai transform", "output missing canonical_url", nil)
	}

	return stage.Output{Document: parsed}, nil
}

// buildMetaInput copies the envelope without content.extracted_text_full.
func buildMetaInput(envelope Document) Document {
	out := make(Document, len(envelope))
	for key, value := range envelope {
		out[key] = value
	}
	if content, ok := envelope["content"].(map[string]any); ok {
		trimmed := make(Document, len(content))
		for key, value := range content {
			if key == "extracted_text_full" {
				continue
			}
			trimmed[key] = value
		}
		out["content"] = trimmed
	}
	return out
}

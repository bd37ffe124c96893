package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"xaio/internal/stage"

	"xaio/internal/services"
)

// Merge combines the parsed metadata, the extracted claims, and the verbatim
// text from the reduced envelope into the final publishable record. It is a
// pure transform.
type Merge struct{}

// NewMerge constructs the merge adapter.
func NewMerge() *Merge {
	return &Merge{}
}

func (m *Merge) Name() string { return stage.Merge }

func (m *Merge) Transform(ctx context.Context, in stage.Input) (stage.Output, error) {
	var claimsDoc Document
	if err := json.Unmarshal(in.Upstream, &claimsDoc); err != nil {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Merge, "decode claims", "", err)
	}

	meta, err := lookupDocument(ctx, in, stage.Meta)
	if err != nil {
		return stage.Output{}, services.Wrap(services.ErrInfrastructure, stage.Merge, "load meta artifact", "", err)
	}
	envelope, err := lookupDocument(ctx, in, stage.Reduce)
	if err != nil {
		return stage.Output{}, services.Wrap(services.ErrInfrastructure, stage.Merge, "load reduced envelope", "", err)
	}

	merged := make(Document, len(meta)+4)
	for key, value := range meta {
		merged[key] = value
	}
	if claims, ok := claimsDoc["claims"].([]any); ok {
		merged["claims"] = claims
	} else {
		merged["claims"] = []any{}
	}

	// The full text and its counts always come verbatim from the envelope,
	// never from the AI output.
	if content, ok := envelope["content"].(map[string]any); ok {
		merged["extracted_text_full"] = safeString(content["extracted_text_full"])
		if v, ok := content["char_count"]; ok {
			merged["char_count"] = v
		}
		if v, ok := content["word_count"]; ok {
			merged["word_count"] = v
		}
	}

	return stage.Output{Document: merged}, nil
}

func lookupDocument(ctx context.Context, in stage.Input, stageName string) (Document, error) {
	if in.Lookup == nil {
		return nil, fmt.Errorf("no artifact lookup available")
	}
	raw, err := in.Lookup(ctx, stageName)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s artifact: %w", stageName, err)
	}
	return doc, nil
}

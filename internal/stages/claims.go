package stages

import (
	"context"

	"xaio/internal/services"
	"xaio/internal/stage"
)

// Claims extracts factual claims from the full reduced envelope. Its runner
// upstream is the meta stage (so claims only run once metadata parsed), but
// the AI call consumes the reduced envelope with the verbatim text.
type Claims struct {
	ai          AiTransformer
	promptSetID string
}

// NewClaims constructs the claims adapter.
func NewClaims(ai AiTransformer, promptSetID string) *Claims {
	return &Claims{ai: ai, promptSetID: promptSetID}
}

func (c *Claims) Name() string { return stage.Claims }

func (c *Claims) Transform(ctx context.Context, in stage.Input) (stage.Output, error) {
	if c.ai == nil {
		return stage.Output{}, services.Wrap(services.ErrConfiguration, stage.Claims, "", "ai service is not configured", nil)
	}

	envelope, err := lookupDocument(ctx, in, stage.Reduce)
	if err != nil {
		return stage.Output{}, services.Wrap(services.ErrInfrastructure, stage.Claims, "load reduced envelope", "", err)
	}

	parsed, err := c.ai.Run(ctx, c.promptSetID, envelope)
	if err != nil {
		return stage.Output{}, services.Wrap(nil, stage.Claims, "ai transform", "", err)
	}

	claims, ok := parsed["claims"].([]any)
	if !ok {
		return stage.Output{}, services.Wrap(services.ErrValidation, stage.Claims, "ai transform", "output missing claims array", nil)
	}

	return stage.Output{Document: Document{"claims": claims}}, nil
}

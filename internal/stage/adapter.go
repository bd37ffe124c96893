// Package stage defines the adapter contract between the generic runner and
// the per-stage transform logic, plus the fixed pipeline ordering.
package stage

import (
	"context"

	"xaio/internal/ledger"
)

// Input is everything an adapter may read. Upstream holds the canonical bytes
// of the immediate predecessor's artifact; Lookup resolves the DONE artifact
// of any earlier stage for adapters that combine several inputs (merge reads
// meta and the reduced envelope, claims reads the reduced envelope).
type Input struct {
	Item         ledger.Item
	UpstreamHash string
	Upstream     []byte
	Lookup       func(ctx context.Context, stage string) ([]byte, error)
}

// Output is an adapter's result. Document must be JSON-serializable; it
// becomes the stage's content-addressed artifact. PublishID is set only by
// the publish adapter and is recorded on the work item.
type Output struct {
	Document  any
	PublishID string
}

// Adapter implements one stage's transform. Adapters must be safe to
// re-invoke with the same input: a stage left running past its lease TTL is
// retried from scratch.
type Adapter interface {
	Name() string
	Transform(ctx context.Context, in Input) (Output, error)
}

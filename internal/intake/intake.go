// Package intake turns rows from the external intake queue into ledger work
// items. The queue itself is a human-editable spreadsheet; the engine only
// ever touches it through the Source interface, which keeps the pipeline
// testable with an in-memory fake.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"xaio/internal/ledger"
	"xaio/internal/logging"
	"xaio/internal/urlnorm"
)

// Intake statuses written back to the source queue.
const (
	StatusQueued    = "QUEUED"
	StatusFailed    = "FAILED"
	StatusPublished = "PUBLISHED"
)

// NewItem is one undigested row from the intake queue.
type NewItem struct {
	ExternalID   string
	CanonicalKey string
}

// Source is the boundary to the external intake queue.
type Source interface {
	ListNewItems(ctx context.Context) ([]NewItem, error)
	MarkStatus(ctx context.Context, externalID, status string) error
}

// ItemID derives the stable work item identifier from a canonical key: the
// full hex SHA-256 digest of the key.
func ItemID(canonicalKey string) string {
	sum := sha256.Sum256([]byte(canonicalKey))
	return hex.EncodeToString(sum[:])
}

// Ingest normalizes new intake rows into work items and acknowledges them on
// the source. Rows whose URL cannot be normalized are marked FAILED and
// skipped; a row seen twice maps onto the same item and is acknowledged
// again without creating anything.
func Ingest(ctx context.Context, src Source, store *ledger.Store, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	rows, err := src.ListNewItems(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, row := range rows {
		key := urlnorm.Canonical(row.CanonicalKey)
		if key == "" {
			logger.Warn("intake row has no usable url",
				logging.String("external_id", row.ExternalID))
			if markErr := src.MarkStatus(ctx, row.ExternalID, StatusFailed); markErr != nil {
				logger.Warn("mark intake row failed", logging.Error(markErr))
			}
			continue
		}

		id := ItemID(key)
		existing, err := store.GetItem(ctx, id)
		if err != nil {
			return created, err
		}

		if existing == nil {
			if _, err := store.UpsertItem(ctx, id, key, row.ExternalID); err != nil {
				return created, err
			}
			created++
			logger.Info("work item created",
				logging.String(logging.FieldItemID, id),
				logging.String("canonical_key", key))
		}

		if err := src.MarkStatus(ctx, row.ExternalID, StatusQueued); err != nil {
			logger.Warn("mark intake row queued", logging.Error(err),
				logging.String("external_id", row.ExternalID))
		}
	}
	return created, nil
}

// ErrNoSource is returned by commands that need an intake source when none is
// configured.
var ErrNoSource = errors.New("intake source is not configured")

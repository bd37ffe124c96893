package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "id, canonical_key, source_id, publish_id, created_at, updated_at"

// UpsertItem records a work item if its key has not been seen before. Items
// are keyed by a content-derived identifier, so re-ingesting the same
// canonical key is a no-op that returns the existing item.
func (s *Store) UpsertItem(ctx context.Context, id, canonicalKey, sourceID string) (*Item, error) {
	if id == "" || canonicalKey == "" {
		return nil, errors.New("item id and canonical key are required")
	}
	now := formatTime(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO work_items (id, canonical_key, source_id, publish_id, created_at, updated_at)
         VALUES (?, ?, ?, '', ?, ?)
         ON CONFLICT (id) DO NOTHING`,
		id, canonicalKey, sourceID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert work item: %w", err)
	}
	return s.GetItem(ctx, id)
}

// GetItem fetches a work item by identifier.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

// FindItemByKey returns the item matching a canonical key, if any.
func (s *Store) FindItemByKey(ctx context.Context, canonicalKey string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE canonical_key = ?`, canonicalKey)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find work item: %w", err)
	}
	return item, nil
}

// ListItems returns all work items ordered by creation time.
func (s *Store) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM work_items ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetPublishID records the external identifier assigned by the publish target.
func (s *Store) SetPublishID(ctx context.Context, itemID, publishID string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE work_items SET publish_id = ?, updated_at = ? WHERE id = ?`,
		publishID, formatTime(time.Now()), itemID,
	)
	if err != nil {
		return fmt.Errorf("set publish id: %w", err)
	}
	return nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item       Item
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&item.ID, &item.CanonicalKey, &item.SourceID, &item.PublishID, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return &item, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ResetStage administratively re-arms one stage record for recomputation:
// status back to pending, attempts cleared, the stored input hash dropped so
// the next sweep treats the upstream artifact as new. Downstream stages
// cascade on their own once this stage produces a fresh artifact hash.
func (s *Store) ResetStage(ctx context.Context, itemID, stage string) error {
	return s.rearm(ctx, itemID, stage, true)
}

// RetryStage re-arms a terminally failed stage record without discarding its
// stored input hash. Records that are not failed are left untouched.
func (s *Store) RetryStage(ctx context.Context, itemID, stage string) error {
	record, err := s.GetRecord(ctx, itemID, stage)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("no %s record for item %s", stage, itemID)
	}
	if record.Status != StatusFailed {
		return fmt.Errorf("item %s stage %s is %s, only failed records can be retried", itemID, stage, record.Status)
	}
	return s.rearm(ctx, itemID, stage, false)
}

func (s *Store) rearm(ctx context.Context, itemID, stage string, clearHashes bool) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rearm tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(
			ctx,
			`SELECT `+recordColumns+` FROM stage_records WHERE item_id = ? AND stage = ?`,
			itemID, stage,
		)
		existing, err := scanRecord(row)
		if err != nil {
			return fmt.Errorf("read stage record: %w", err)
		}

		next := *existing
		next.Status = StatusPending
		next.Version = existing.Version + 1
		next.Attempts = 0
		next.ErrorKind = ""
		next.ErrorMessage = ""
		next.UpdatedAt = time.Now().UTC()
		if clearHashes {
			next.InputHash = ""
			next.ArtifactHash = ""
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE stage_records
             SET status = ?, version = ?, attempts = 0, input_hash = ?, artifact_hash = ?,
                 error_kind = '', error_message = '', updated_at = ?
             WHERE item_id = ? AND stage = ? AND version = ?`,
			next.Status, next.Version, next.InputHash, next.ArtifactHash,
			formatTime(next.UpdatedAt), itemID, stage, existing.Version,
		); err != nil {
			return fmt.Errorf("rearm stage record: %w", err)
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO stage_history (item_id, stage, status, version, attempts, input_hash, artifact_hash, error_kind, error_message, recorded_at)
             VALUES (?, ?, ?, ?, 0, ?, ?, '', '', ?)`,
			itemID, stage, next.Status, next.Version, next.InputHash, next.ArtifactHash,
			formatTime(next.UpdatedAt),
		); err != nil {
			return fmt.Errorf("append stage history: %w", err)
		}

		return tx.Commit()
	})
}

// History returns the audit trail for one item, oldest first. Stage filters
// to a single stage when non-empty.
func (s *Store) History(ctx context.Context, itemID, stage string) ([]HistoryEntry, error) {
	query := `SELECT item_id, stage, status, version, attempts, input_hash, artifact_hash, error_kind, error_message, recorded_at
              FROM stage_history WHERE item_id = ?`
	args := []any{itemID}
	if stage != "" {
		query += ` AND stage = ?`
		args = append(args, stage)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry       HistoryEntry
			statusStr   string
			recordedRaw string
		)
		if err := rows.Scan(
			&entry.ItemID, &entry.Stage, &statusStr, &entry.Version, &entry.Attempts,
			&entry.InputHash, &entry.ArtifactHash, &entry.ErrorKind, &entry.ErrorMessage,
			&recordedRaw,
		); err != nil {
			return nil, err
		}
		entry.Status = Status(statusStr)
		if recorded, err := parseTimeString(recordedRaw); err == nil {
			entry.RecordedAt = recorded
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats returns record counts grouped by stage and status.
func (s *Store) Stats(ctx context.Context, stageOrder []string) ([]StageCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, status, COUNT(1) FROM stage_records GROUP BY stage, status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	byStage := make(map[string]*StageCounts)
	for rows.Next() {
		var (
			stage     string
			statusStr string
			count     int
		)
		if err := rows.Scan(&stage, &statusStr, &count); err != nil {
			return nil, err
		}
		counts, ok := byStage[stage]
		if !ok {
			counts = &StageCounts{Stage: stage}
			byStage[stage] = counts
		}
		switch Status(statusStr) {
		case StatusPending:
			counts.Pending += count
		case StatusRunning:
			counts.Running += count
		case StatusDone:
			counts.Done += count
		case StatusFailed:
			counts.Failed += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]StageCounts, 0, len(stageOrder))
	for _, stage := range stageOrder {
		if counts, ok := byStage[stage]; ok {
			ordered = append(ordered, *counts)
		} else {
			ordered = append(ordered, StageCounts{Stage: stage})
		}
		delete(byStage, stage)
	}
	for _, counts := range byStage {
		ordered = append(ordered, *counts)
	}
	return ordered, nil
}

// CheckHealth verifies the ledger database is reachable, used by the
// scheduler to distinguish infrastructure failures from item failures.
func (s *Store) CheckHealth(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("ledger database connection unavailable")
	}
	pingCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping ledger database: %w", err)
	}
	return nil
}

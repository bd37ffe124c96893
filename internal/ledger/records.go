package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrConflict is returned when a transition's expected version no longer
// matches the stored record. Callers must re-read state instead of retrying
// the same transition blindly.
var ErrConflict = errors.New("ledger: transition conflict")

// ErrInvalidTransition is returned when a requested status change violates
// the stage record lifecycle.
var ErrInvalidTransition = errors.New("ledger: invalid transition")

const recordColumns = "item_id, stage, status, version, attempts, input_hash, artifact_hash, error_kind, error_message, created_at, updated_at"

// Transition describes one requested stage record mutation. ExpectedVersion
// carries the version the caller observed; zero means the caller observed no
// record at all.
type Transition struct {
	ItemID            string
	Stage             string
	ExpectedVersion   int64
	Status            Status
	InputHash         string
	ArtifactHash      string
	ErrorKind         string
	ErrorMessage      string
	IncrementAttempts bool
	ResetAttempts     bool
}

// GetRecord fetches the stage record for (item, stage), or nil when absent.
func (s *Store) GetRecord(ctx context.Context, itemID, stage string) (*Record, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+recordColumns+` FROM stage_records WHERE item_id = ? AND stage = ?`,
		itemID, stage,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stage record: %w", err)
	}
	return record, nil
}

// ListRecords returns all stage records for one item.
func (s *Store) ListRecords(ctx context.Context, itemID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM stage_records WHERE item_id = ? ORDER BY stage`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stage records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Apply performs the transition atomically. The stored version must equal
// ExpectedVersion or ErrConflict is returned; this is the single-writer
// discipline that makes concurrent workers safe. Every applied transition is
// mirrored into the stage_history audit table.
func (s *Store) Apply(ctx context.Context, t Transition) (*Record, error) {
	ctx = ensureContext(ctx)
	if t.ItemID == "" || t.Stage == "" {
		return nil, errors.New("transition requires item id and stage")
	}
	if _, ok := ParseStatus(string(t.Status)); !ok {
		return nil, fmt.Errorf("unknown status %q", t.Status)
	}

	var applied *Record
	err := retryOnBusy(ctx, func() error {
		record, txErr := s.applyOnce(ctx, t)
		if txErr != nil {
			return txErr
		}
		applied = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *Store) applyOnce(ctx context.Context, t Transition) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(
		ctx,
		`SELECT `+recordColumns+` FROM stage_records WHERE item_id = ? AND stage = ?`,
		t.ItemID, t.Stage,
	)
	existing, err := scanRecord(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read stage record: %w", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		existing = nil
	}

	switch {
	case existing == nil && t.ExpectedVersion != 0:
		return nil, fmt.Errorf("%w: %s/%s expected version %d, record absent", ErrConflict, t.ItemID, t.Stage, t.ExpectedVersion)
	case existing != nil && existing.Version != t.ExpectedVersion:
		return nil, fmt.Errorf("%w: %s/%s expected version %d, have %d", ErrConflict, t.ItemID, t.Stage, t.ExpectedVersion, existing.Version)
	}

	if err := checkLifecycle(existing, t); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := &Record{
		ItemID:       t.ItemID,
		Stage:        t.Stage,
		Status:       t.Status,
		Version:      t.ExpectedVersion + 1,
		InputHash:    t.InputHash,
		ArtifactHash: t.ArtifactHash,
		ErrorKind:    t.ErrorKind,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing != nil {
		next.CreatedAt = existing.CreatedAt
		next.Attempts = existing.Attempts
	}
	if t.ResetAttempts {
		next.Attempts = 0
	}
	if t.IncrementAttempts {
		next.Attempts++
	}

	if existing == nil {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO stage_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			next.ItemID, next.Stage, next.Status, next.Version, next.Attempts,
			next.InputHash, next.ArtifactHash, next.ErrorKind, next.ErrorMessage,
			formatTime(next.CreatedAt), formatTime(next.UpdatedAt),
		)
	} else {
		_, err = tx.ExecContext(
			ctx,
			`UPDATE stage_records
             SET status = ?, version = ?, attempts = ?, input_hash = ?, artifact_hash = ?,
                 error_kind = ?, error_message = ?, updated_at = ?
             WHERE item_id = ? AND stage = ? AND version = ?`,
			next.Status, next.Version, next.Attempts, next.InputHash, next.ArtifactHash,
			next.ErrorKind, next.ErrorMessage, formatTime(next.UpdatedAt),
			next.ItemID, next.Stage, t.ExpectedVersion,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("write stage record: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO stage_history (item_id, stage, status, version, attempts, input_hash, artifact_hash, error_kind, error_message, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		next.ItemID, next.Stage, next.Status, next.Version, next.Attempts,
		next.InputHash, next.ArtifactHash, next.ErrorKind, next.ErrorMessage,
		formatTime(next.UpdatedAt),
	); err != nil {
		return nil, fmt.Errorf("append stage history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return next, nil
}

// checkLifecycle enforces the stage record state machine:
// absent/pending -> running -> done|failed, failed -> running (retry), and
// done -> running only when the upstream input hash changed (recompute).
func checkLifecycle(existing *Record, t Transition) error {
	from := StatusPending
	if existing != nil {
		from = existing.Status
	}

	switch t.Status {
	case StatusRunning:
		switch from {
		case StatusPending, StatusFailed:
			return nil
		case StatusDone:
			if existing != nil && existing.InputHash != t.InputHash {
				return nil
			}
			return fmt.Errorf("%w: done record may only re-run with a changed input hash", ErrInvalidTransition)
		case StatusRunning:
			// Orphan recovery: a running record whose holder crashed is
			// re-claimed as running. Lease gating keeps live workers from
			// ever reaching this path concurrently.
			return nil
		}
	case StatusDone, StatusFailed:
		if from == StatusRunning {
			return nil
		}
		return fmt.Errorf("%w: %s may only follow running, not %s", ErrInvalidTransition, t.Status, from)
	case StatusPending:
		return fmt.Errorf("%w: pending is set administratively, not via Apply", ErrInvalidTransition)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, t.Status)
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		record     Record
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&record.ItemID,
		&record.Stage,
		&statusStr,
		&record.Version,
		&record.Attempts,
		&record.InputHash,
		&record.ArtifactHash,
		&record.ErrorKind,
		&record.ErrorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	record.Status = Status(statusStr)
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return &record, nil
}

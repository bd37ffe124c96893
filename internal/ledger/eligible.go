package ledger

import (
	"context"
	"fmt"
	"time"
)

// EligibleQuery selects work for one stage. Upstream is the stage whose DONE
// artifact feeds this stage; empty means the stage consumes the work item
// itself (capture). MaxAttempts bounds transient retries and CoolDown keeps a
// freshly failed record out of the very next sweep.
type EligibleQuery struct {
	Stage       string
	Upstream    string
	Limit       int
	MaxAttempts int
	CoolDown    time.Duration
}

// ListEligible returns items ready for the given stage, oldest first. An item
// qualifies when its upstream record is DONE and this stage has no record, a
// pending record, an orphaned running record (no live lease), a retryable
// failure with attempt budget left, or a record computed from a stale
// upstream hash. Items holding a live lease for this stage are skipped
// entirely; another worker owns them.
func (s *Store) ListEligible(ctx context.Context, q EligibleQuery) ([]Eligible, error) {
	if q.Stage == "" {
		return nil, fmt.Errorf("eligible query requires a stage")
	}
	if q.Limit <= 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	cutoff := formatTime(now.Add(-q.CoolDown))
	nowStr := formatTime(now)

	eligibleClause := `
        AND l.scope IS NULL
        AND (
            r.item_id IS NULL
            OR r.status = 'pending'
            OR r.status = 'running'
            OR (r.status = 'done' AND r.input_hash <> %[1]s)
            OR (r.status = 'failed' AND r.input_hash <> %[1]s)
            OR (r.status = 'failed' AND r.error_kind = 'transient' AND r.attempts < ? AND r.updated_at <= ?)
        )`

	var (
		query string
		args  []any
	)
	if q.Upstream == "" {
		query = `
            SELECT w.id, w.id
            FROM work_items w
            LEFT JOIN stage_records r ON r.item_id = w.id AND r.stage = ?
            LEFT JOIN leases l ON l.scope = w.id || '/' || ? AND l.expires_at > ?
            WHERE 1 = 1` +
			fmt.Sprintf(eligibleClause, "w.id") + `
            ORDER BY w.created_at
            LIMIT ?`
		args = []any{q.Stage, q.Stage, nowStr, q.MaxAttempts, cutoff, q.Limit}
	} else {
		query = `
            SELECT u.item_id, u.artifact_hash
            FROM stage_records u
            LEFT JOIN stage_records r ON r.item_id = u.item_id AND r.stage = ?
            LEFT JOIN leases l ON l.scope = u.item_id || '/' || ? AND l.expires_at > ?
            WHERE u.stage = ? AND u.status = 'done'` +
			fmt.Sprintf(eligibleClause, "u.artifact_hash") + `
            ORDER BY u.updated_at
            LIMIT ?`
		args = []any{q.Stage, q.Stage, nowStr, q.Upstream, q.MaxAttempts, cutoff, q.Limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list eligible for %s: %w", q.Stage, err)
	}
	defer rows.Close()

	var eligible []Eligible
	for rows.Next() {
		var e Eligible
		if err := rows.Scan(&e.ItemID, &e.UpstreamHash); err != nil {
			return nil, err
		}
		eligible = append(eligible, e)
	}
	return eligible, rows.Err()
}

// Package lease provides short-lived exclusive leases over pipeline scopes.
// A scope is either one (item, stage) pair or the global sweep. Leases expire
// on their own, so a crashed worker's claim self-heals without operator
// action; this replaces the lock files the original scripts relied on.
package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned by Acquire while an unexpired lease exists for the scope.
var ErrBusy = errors.New("lease: scope is held")

// ErrExpired is returned by Renew when the caller's lease no longer exists or
// has already lapsed.
var ErrExpired = errors.New("lease: token expired")

// SweepScope is the global exclusivity scope for full pipeline sweeps.
const SweepScope = "sweep"

// ItemScope builds the lease scope for one (item, stage) pair. The format is
// load-bearing: ledger eligibility queries join on it.
func ItemScope(itemID, stage string) string {
	return itemID + "/" + stage
}

// Lease is a held exclusivity token.
type Lease struct {
	Scope     string
	Token     string
	ExpiresAt time.Time
}

// Manager persists leases in the ledger database.
type Manager struct {
	db  *sql.DB
	now func() time.Time
}

// New constructs a manager over the shared ledger database connection.
func New(db *sql.DB) *Manager {
	return &Manager{db: db, now: time.Now}
}

// WithClock overrides the time source, used by tests to force expiry.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Acquire claims the scope for ttl. An existing unexpired lease yields
// ErrBusy; an expired one is treated as absent and replaced. The claim is a
// single conditional upsert, so concurrent callers resolve inside SQLite to
// exactly one winner; everyone else observes ErrBusy.
func (m *Manager) Acquire(ctx context.Context, scope string, ttl time.Duration) (*Lease, error) {
	if scope == "" {
		return nil, errors.New("lease scope is required")
	}
	if ttl <= 0 {
		return nil, errors.New("lease ttl must be positive")
	}

	now := m.now().UTC()
	lease := &Lease{
		Scope:     scope,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(ttl),
	}

	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = m.db.ExecContext(
			ctx,
			`INSERT INTO leases (scope, token, acquired_at, expires_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (scope) DO UPDATE SET
			     token = excluded.token,
			     acquired_at = excluded.acquired_at,
			     expires_at = excluded.expires_at
			 WHERE leases.expires_at <= excluded.acquired_at`,
			scope, lease.Token, formatTime(now), formatTime(lease.ExpiresAt),
		)
		return execErr
	})
	if err != nil {
		// A writer still holding the database past the retry budget is
		// holding the scope; report contention, not failure.
		if isSQLiteBusy(err) {
			return nil, fmt.Errorf("%w: %s", ErrBusy, scope)
		}
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("acquire lease rows: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBusy, scope)
	}
	return lease, nil
}

// Renew extends a held lease by ttl from now. Renewal fails with ErrExpired
// when the lease lapsed or was taken over by another worker.
func (m *Manager) Renew(ctx context.Context, lease *Lease, ttl time.Duration) error {
	if lease == nil {
		return errors.New("lease is nil")
	}
	now := m.now().UTC()
	expiresAt := now.Add(ttl)
	var res sql.Result
	if err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = m.db.ExecContext(
			ctx,
			`UPDATE leases SET expires_at = ? WHERE scope = ? AND token = ? AND expires_at > ?`,
			formatTime(expiresAt), lease.Scope, lease.Token, formatTime(now),
		)
		return execErr
	}); err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renew lease rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrExpired, lease.Scope)
	}
	lease.ExpiresAt = expiresAt
	return nil
}

// Release drops the lease. Releasing an already expired or replaced lease is
// a no-op; the token check prevents releasing someone else's claim.
func (m *Manager) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	if err := retryOnBusy(ctx, func() error {
		_, execErr := m.db.ExecContext(
			ctx,
			`DELETE FROM leases WHERE scope = ? AND token = ?`,
			lease.Scope, lease.Token,
		)
		return execErr
	}); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// timeLayout is fixed-width so expiry timestamps compare correctly as
// strings, both here and in the ledger's eligibility join.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

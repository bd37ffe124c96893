package testsupport

import (
	"context"
	"testing"

	"xaio/internal/artifact"
	"xaio/internal/config"
	"xaio/internal/intake"
	"xaio/internal/ledger"
	"xaio/internal/lease"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenArtifacts opens an artifact.Store for tests.
func MustOpenArtifacts(t testing.TB, cfg *config.Config) *artifact.Store {
	t.Helper()

	store, err := artifact.Open(cfg)
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}
	return store
}

// NewLeases builds a lease manager on the ledger's database.
func NewLeases(store *ledger.Store) *lease.Manager {
	return lease.New(store.DB())
}

// NewItem creates a work item for tests keyed by the canonical URL.
func NewItem(t testing.TB, store *ledger.Store, canonicalURL string) *ledger.Item {
	t.Helper()

	item, err := store.UpsertItem(context.Background(), intake.ItemID(canonicalURL), canonicalURL, "")
	if err != nil {
		t.Fatalf("store.UpsertItem: %v", err)
	}
	return item
}

// MustApply applies a ledger transition, failing the test on error.
func MustApply(t testing.TB, store *ledger.Store, transition ledger.Transition) *ledger.Record {
	t.Helper()

	record, err := store.Apply(context.Background(), transition)
	if err != nil {
		t.Fatalf("store.Apply(%s/%s -> %s): %v", transition.ItemID, transition.Stage, transition.Status, err)
	}
	return record
}

// CompleteStage walks a record through running to done with the given hashes.
func CompleteStage(t testing.TB, store *ledger.Store, itemID, stage, inputHash, artifactHash string) *ledger.Record {
	t.Helper()

	var expected int64
	if existing, err := store.GetRecord(context.Background(), itemID, stage); err != nil {
		t.Fatalf("store.GetRecord: %v", err)
	} else if existing != nil {
		expected = existing.Version
	}

	running := MustApply(t, store, ledger.Transition{
		ItemID:          itemID,
		Stage:           stage,
		ExpectedVersion: expected,
		Status:          ledger.StatusRunning,
		InputHash:       inputHash,
	})
	return MustApply(t, store, ledger.Transition{
		ItemID:          itemID,
		Stage:           stage,
		ExpectedVersion: running.Version,
		Status:          ledger.StatusDone,
		InputHash:       inputHash,
		ArtifactHash:    artifactHash,
		ResetAttempts:   true,
	})
}

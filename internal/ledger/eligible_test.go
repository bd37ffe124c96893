package ledger_test

import (
	"context"
	"testing"
	"time"

	"xaio/internal/ledger"
	"xaio/internal/stage"
	"xaio/internal/testsupport"
)

func listEligible(t *testing.T, store *ledger.Store, q ledger.EligibleQuery) []ledger.Eligible {
	t.Helper()
	eligible, err := store.ListEligible(context.Background(), q)
	if err != nil {
		t.Fatalf("ListEligible(%s): %v", q.Stage, err)
	}
	return eligible
}

func TestCaptureEligibilityDrivesOffWorkItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	item := testsupport.NewItem(t, store, "https://example.com/a")

	eligible := listEligible(t, store, ledger.EligibleQuery{
		Stage: stage.Capture, Limit: 10, MaxAttempts: 3,
	})
	if len(eligible) != 1 {
		t.Fatalf("expected 1 eligible item, got %d", len(eligible))
	}
	if eligible[0].ItemID != item.ID || eligible[0].UpstreamHash != item.ID {
		t.Fatalf("unexpected candidate: %+v", eligible[0])
	}
}

func TestDownstreamStageWaitsForUpstreamDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	item := testsupport.NewItem(t, store, "https://example.com/a")

	query := ledger.EligibleQuery{
		Stage: stage.Reduce, Upstream: stage.Capture, Limit: 10, MaxAttempts: 3,
	}
	if eligible := listEligible(t, store, query); len(eligible) != 0 {
		t.Fatalf("expected nothing eligible before capture completes, got %d", len(eligible))
	}

	testsupport.CompleteStage(t, store, item.ID, stage.Capture, item.ID, "capture-artifact")

	eligible := listEligible(t, store, query)
	if len(eligible) != 1 {
		t.Fatalf("expected 1 eligible item after capture, got %d", len(eligible))
	}
	if eligible[0].UpstreamHash != "capture-artifact" {
		t.Fatalf("expected upstream artifact hash, got %q", eligible[0].UpstreamHash)
	}
}

func TestDoneRecordWithMatchingInputIsNotEligible(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	item := testsupport.NewItem(t, store, "https://example.com/a")
	testsupport.CompleteStage(t, store, item.ID, stage.Capture, item.ID, "capture-artifact")
	testsupport.CompleteStage(t, store, item.ID, stage.Reduce, "capture-artifact", "reduce-artifact")

	eligible := listEligible(t, store, ledger.EligibleQuery{
		Stage: stage.Reduce, Upstream: stage.Capture, Limit: 10, MaxAttempts: 3,
	})
	if len(eligible) != 0 {
		t.Fatalf("expected converged stage to yield no work, got %d", len(eligible))
	}
}

func TestChangedUpstreamHashMakesDoneRecordEligible(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	item := testsupport.NewItem(t, store, "https://example.com/a")
	testsupport.CompleteStage(t, store, item.ID, stage.Capture, item.ID, "capture-v1")
	testsupport.CompleteStage(t, store, item.ID, stage.Reduce, "capture-v1", "reduce-v1")

	// Recapture lands a new artifact; reduce must recompute.
	testsupport.CompleteStage(t, store, item.ID, stage.Capture, "forced-recapture", "capture-v2")

	eligible := listEligible(t, store, ledger.EligibleQuery{
		Stage: stage.Reduce, Upstream: stage.Capture, Limit: 10, MaxAttempts: 3,
	})
	if len(eligible) != 1 {
		t.Fatalf("expected stale reduce record to be eligible, got %d", len(eligible))
	}
	if eligible[0].UpstreamHash != "capture-v2" {
		t.Fatalf("expected new upstream hash, got %q", eligible[0].UpstreamHash)
	}
}

func TestTransientFailureRespectsAttemptBudgetAndCoolDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	item := testsupport.NewItem(t, store, "https://example.com/a")

	failCapture := func(expected int64) int64 {
		running := testsupport.MustApply(t, store, ledger.Transition{
			ItemID:          item.ID,
			Stage:           stage.Capture,
			ExpectedVersion: expected,
			Status:          ledger.StatusRunning,
			InputHash:       item.ID,
		})
		failed := testsupport.MustApply(t, store, ledger.Transition{
			ItemID:            item.ID,
			Stage:             stage.Capture,
			ExpectedVersion:   running.Version,
			Status:            ledger.StatusFailed,
			InputHash:         item.ID,
			ErrorKind:         "transient",
			ErrorMessage:      "http 503",
			IncrementAttempts: true,
		})
		return failed.Version
	}

	version := failCapture(0)

	query := ledger.EligibleQuery{Stage: stage.Capture, Limit: 10, MaxAttempts: 3}
	if eligible := listEligible(t, store, query); len(eligible) != 1 {
		t.Fatalf("expected transient failure under budget to retry, got %d", len(eligible))
	}

	// Cool-down keeps the record out of the immediate next sweep.
	cooled := query
	cooled.CoolDown = time.Hour
	if eligible := listEligible(t, store, cooled); len(eligible) != 0 {
		t.Fatalf("expected cool-down to suppress retry, got %d", len(eligible))
	}

	version = failCapture(version)
	version = failCapture(version)
	_ = version

	if eligible := listEligible(t, store, query); len(eligible) != 0 {
		t.Fatalf("expected exhausted attempt budget to exclude item, got %d", len(eligible))
	}
}

func TestValidationFailureIsTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	item := testsupport.NewItem(t, store, "https://example.com/a")

	running := testsupport.MustApply(t, store, ledger.Transition{
		ItemID:          item.ID,
		Stage:           stage.Capture,
		ExpectedVersion: 0,
		Status:          ledger.StatusRunning,
		InputHash:       item.ID,
	})
	testsupport.MustApply(t, store, ledger.Transition{
		ItemID:            item.ID,
		Stage:             stage.Capture,
		ExpectedVersion:   running.Version,
		Status:            ledger.StatusFailed,
		InputHash:         item.ID,
		ErrorKind:         "validation",
		ErrorMessage:      "empty capture",
		IncrementAttempts: true,
	})

	eligible := listEligible(t, store, ledger.EligibleQuery{
		Stage: stage.Capture, Limit: 10, MaxAttempts: 3,
	})
	if len(eligible) != 0 {
		t.Fatalf("expected validation failure to be terminal, got %d eligible", len(eligible))
	}
}

func TestLiveLeaseExcludesItemAndExpiredLeaseDoesNot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	leases := testsupport.NewLeases(store)
	item := testsupport.NewItem(t, store, "https://example.com/a")

	held, err := leases.Acquire(context.Background(), item.ID+"/"+stage.Capture, time.Hour)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	query := ledger.EligibleQuery{Stage: stage.Capture, Limit: 10, MaxAttempts: 3}
	if eligible := listEligible(t, store, query); len(eligible) != 0 {
		t.Fatalf("expected leased item to be excluded, got %d", len(eligible))
	}

	if err := leases.Release(context.Background(), held); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if eligible := listEligible(t, store, query); len(eligible) != 1 {
		t.Fatalf("expected released item to be eligible, got %d", len(eligible))
	}
}

func TestOrphanedRunningRecordIsEligible(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	item := testsupport.NewItem(t, store, "https://example.com/a")

	// A running record with no live lease means its worker died mid-flight.
	testsupport.MustApply(t, store, ledger.Transition{
		ItemID:          item.ID,
		Stage:           stage.Capture,
		ExpectedVersion: 0,
		Status:          ledger.StatusRunning,
		InputHash:       item.ID,
	})

	eligible := listEligible(t, store, ledger.EligibleQuery{
		Stage: stage.Capture, Limit: 10, MaxAttempts: 3,
	})
	if len(eligible) != 1 {
		t.Fatalf("expected orphaned running record to be eligible, got %d", len(eligible))
	}
}

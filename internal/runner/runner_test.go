package runner_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"xaio/internal/ledger"
	"xaio/internal/runner"
	"xaio/internal/services"
	"xaio/internal/stage"
	"xaio/internal/testsupport"
)

type fakeAdapter struct {
	name      string
	calls     int
	transform func(ctx context.Context, in stage.Input) (stage.Output, error)
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Transform(ctx context.Context, in stage.Input) (stage.Output, error) {
	f.calls++
	return f.transform(ctx, in)
}

type fixture struct {
	store     *ledger.Store
	runner    *runner.Runner
	adapter   *fakeAdapter
	artifacts interface {
		Get(hash string) ([]byte, error)
	}
}

func newFixture(t *testing.T, adapter *fakeAdapter, opts runner.Options) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	artifacts := testsupport.MustOpenArtifacts(t, cfg)
	leases := testsupport.NewLeases(store)
	return &fixture{
		store:     store,
		runner:    runner.New(store, leases, artifacts, adapter, nil, opts),
		adapter:   adapter,
		artifacts: artifacts,
	}
}

func captureAdapter(out stage.Output, err error) *fakeAdapter {
	return &fakeAdapter{
		name: stage.Capture,
		transform: func(ctx context.Context, in stage.Input) (stage.Output, error) {
			return out, err
		},
	}
}

func TestRunProcessesEligibleItemToDone(t *testing.T) {
	adapter := &fakeAdapter{
		name: stage.Capture,
		transform: func(ctx context.Context, in stage.Input) (stage.Output, error) {
			var upstream map[string]string
			if err := json.Unmarshal(in.Upstream, &upstream); err != nil {
				t.Fatalf("decode synthesized upstream: %v", err)
			}
			if upstream["canonical_url"] != in.Item.CanonicalKey {
				t.Fatalf("expected canonical url in upstream, got %q", upstream["canonical_url"])
			}
			return stage.Output{Document: map[string]any{"html": "<p>hi</p>"}}, nil
		},
	}
	fx := newFixture(t, adapter, runner.Options{MaxAttempts: 3})
	item := testsupport.NewItem(t, fx.store, "https://example.com/a")

	summary, err := fx.runner.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Eligible != 1 || summary.Succeeded != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Done) != 1 || summary.Done[0] != item.ID {
		t.Fatalf("expected done list with item, got %v", summary.Done)
	}

	record, err := fx.store.GetRecord(context.Background(), item.ID, stage.Capture)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record.Status != ledger.StatusDone {
		t.Fatalf("expected done record, got %s", record.Status)
	}
	if _, err := fx.artifacts.Get(record.ArtifactHash); err != nil {
		t.Fatalf("expected stored artifact: %v", err)
	}
}

func TestRepeatRunDoesNotReinvokeAdapter(t *testing.T) {
	adapter := captureAdapter(stage.Output{Document: map[string]any{"html": "x"}}, nil)
	fx := newFixture(t, adapter, runner.Options{MaxAttempts: 3})
	testsupport.NewItem(t, fx.store, "https://example.com/a")

	if _, err := fx.runner.Run(context.Background(), 10); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	summary, err := fx.runner.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Eligible != 0 {
		t.Fatalf("expected converged stage to offer no work, got %d eligible", summary.Eligible)
	}
	if adapter.calls != 1 {
		t.Fatalf("expected a single adapter invocation, got %d", adapter.calls)
	}
}

func TestTransientFailureRetriesUntilBudgetExhausted(t *testing.T) {
	adapter := captureAdapter(stage.Output{}, services.Wrap(services.ErrTransient, stage.Capture, "fetch", "http 503", nil))
	fx := newFixture(t, adapter, runner.Options{MaxAttempts: 3})
	item := testsupport.NewItem(t, fx.store, "https://example.com/a")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		summary, err := fx.runner.Run(ctx, 10)
		if err != nil {
			t.Fatalf("Run %d: %v", i+1, err)
		}
		if summary.Failed != 1 {
			t.Fatalf("Run %d: expected 1 failure, got %+v", i+1, summary)
		}
	}

	summary, err := fx.runner.Run(ctx, 10)
	if err != nil {
		t.Fatalf("final Run: %v", err)
	}
	if summary.Eligible != 0 {
		t.Fatalf("expected exhausted item to drop out, got %d eligible", summary.Eligible)
	}
	if adapter.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", adapter.calls)
	}

	record, err := fx.store.GetRecord(ctx, item.ID, stage.Capture)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record.Status != ledger.StatusFailed || record.Attempts != 3 {
		t.Fatalf("unexpected terminal record: status=%s attempts=%d", record.Status, record.Attempts)
	}
	if record.ErrorKind != "transient" {
		t.Fatalf("expected transient error kind, got %q", record.ErrorKind)
	}
}

func TestValidationFailureIsTerminalImmediately(t *testing.T) {
	adapter := captureAdapter(stage.Output{}, services.Wrap(services.ErrValidation, stage.Capture, "fetch", "empty capture", nil))
	fx := newFixture(t, adapter, runner.Options{MaxAttempts: 3})
	item := testsupport.NewItem(t, fx.store, "https://example.com/a")
	ctx := context.Background()

	summary, err := fx.runner.Run(ctx, 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", summary)
	}

	followup, err := fx.runner.Run(ctx, 10)
	if err != nil {
		t.Fatalf("followup Run: %v", err)
	}
	if followup.Eligible != 0 {
		t.Fatalf("expected validation failure to be terminal, got %d eligible", followup.Eligible)
	}
	if adapter.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", adapter.calls)
	}

	record, err := fx.store.GetRecord(ctx, item.ID, stage.Capture)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record.ErrorKind != "validation" {
		t.Fatalf("expected validation error kind, got %q", record.ErrorKind)
	}
}

func TestInfrastructureFailureAbortsRun(t *testing.T) {
	adapter := captureAdapter(stage.Output{}, services.Wrap(services.ErrInfrastructure, stage.Capture, "fetch", "disk full", nil))
	fx := newFixture(t, adapter, runner.Options{MaxAttempts: 3})
	testsupport.NewItem(t, fx.store, "https://example.com/a")

	_, err := fx.runner.Run(context.Background(), 10)
	if err == nil {
		t.Fatal("expected infrastructure failure to abort the run")
	}
	if kind := services.Classify(err); kind != services.KindInfrastructure {
		t.Fatalf("expected infrastructure classification, got %s", kind)
	}
}

func TestHeldLeaseExcludesItem(t *testing.T) {
	adapter := captureAdapter(stage.Output{Document: map[string]any{"html": "x"}}, nil)
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	artifacts := testsupport.MustOpenArtifacts(t, cfg)
	leases := testsupport.NewLeases(store)
	r := runner.New(store, leases, artifacts, adapter, nil, runner.Options{MaxAttempts: 3})

	item := testsupport.NewItem(t, store, "https://example.com/a")
	held, err := leases.Acquire(context.Background(), item.ID+"/"+stage.Capture, time.Hour)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	summary, err := r.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Eligible != 0 || adapter.calls != 0 {
		t.Fatalf("expected leased item to be untouched: %+v calls=%d", summary, adapter.calls)
	}

	if err := leases.Release(context.Background(), held); err != nil {
		t.Fatalf("Release: %v", err)
	}
	summary, err = r.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run after release: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("expected item to process after release, got %+v", summary)
	}
}

func TestPublishIDIsRecordedOnItem(t *testing.T) {
	adapter := captureAdapter(stage.Output{
		Document:  map[string]any{"receipt": true},
		PublishID: "wp-123",
	}, nil)
	fx := newFixture(t, adapter, runner.Options{MaxAttempts: 3})
	item := testsupport.NewItem(t, fx.store, "https://example.com/a")

	if _, err := fx.runner.Run(context.Background(), 10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	updated, err := fx.store.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if updated.PublishID != "wp-123" {
		t.Fatalf("expected publish id on item, got %q", updated.PublishID)
	}
}

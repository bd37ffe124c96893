// Package runner is the generic stage driver: it selects eligible items,
// takes a per-item lease, invokes the stage adapter, persists the artifact,
// and records the outcome through the ledger's compare-and-set transition.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"xaio/internal/artifact"
	"xaio/internal/ledger"
	"xaio/internal/lease"
	"xaio/internal/logging"
	"xaio/internal/services"
	"xaio/internal/stage"
)

// Options tunes runner behavior; zero values fall back to safe defaults.
type Options struct {
	MaxAttempts int
	CoolDown    time.Duration
	LeaseTTL    time.Duration
}

// Summary reports what one runner invocation did.
type Summary struct {
	Eligible  int
	Succeeded int
	Skipped   int
	Failed    int
	Done      []string
}

// Runner drives one stage.
type Runner struct {
	store     *ledger.Store
	leases    *lease.Manager
	artifacts *artifact.Store
	adapter   stage.Adapter
	logger    *slog.Logger
	opts      Options
}

// New constructs a runner for the given adapter.
func New(store *ledger.Store, leases *lease.Manager, artifacts *artifact.Store, adapter stage.Adapter, logger *slog.Logger, opts Options) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Minute
	}
	return &Runner{
		store:     store,
		leases:    leases,
		artifacts: artifacts,
		adapter:   adapter,
		logger:    logger,
		opts:      opts,
	}
}

// Run processes up to limit eligible items for this stage. Item-level
// failures are isolated per stage record; only infrastructure failures
// (ledger or lease backend unreachable) abort the invocation.
func (r *Runner) Run(ctx context.Context, limit int) (Summary, error) {
	stageName := r.adapter.Name()
	eligible, err := r.store.ListEligible(ctx, ledger.EligibleQuery{
		Stage:       stageName,
		Upstream:    stage.Upstream(stageName),
		Limit:       limit,
		MaxAttempts: r.opts.MaxAttempts,
		CoolDown:    r.opts.CoolDown,
	})
	if err != nil {
		return Summary{}, services.Wrap(services.ErrInfrastructure, stageName, "list eligible", "", err)
	}

	summary := Summary{Eligible: len(eligible)}
	for _, candidate := range eligible {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		itemCtx := services.WithItemID(services.WithStage(ctx, stageName), candidate.ItemID)
		outcome, err := r.processItem(itemCtx, stageName, candidate)
		if err != nil {
			return summary, err
		}
		switch outcome {
		case outcomeSucceeded:
			summary.Succeeded++
			summary.Done = append(summary.Done, candidate.ItemID)
		case outcomeSkipped:
			summary.Skipped++
		case outcomeFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (r *Runner) processItem(ctx context.Context, stageName string, candidate ledger.Eligible) (outcome, error) {
	logger := logging.WithContext(ctx, r.logger)

	held, err := r.leases.Acquire(ctx, lease.ItemScope(candidate.ItemID, stageName), r.opts.LeaseTTL)
	if errors.Is(err, lease.ErrBusy) {
		logger.Debug("item lease busy, skipping")
		return outcomeSkipped, nil
	}
	if err != nil {
		return 0, services.Wrap(services.ErrInfrastructure, stageName, "acquire lease", "", err)
	}
	defer func() {
		if releaseErr := r.leases.Release(context.WithoutCancel(ctx), held); releaseErr != nil {
			logger.Warn("release item lease", logging.Error(releaseErr))
		}
	}()

	// Re-read under the lease: eligibility was computed without one and the
	// record may have moved.
	record, err := r.store.GetRecord(ctx, candidate.ItemID, stageName)
	if err != nil {
		return 0, services.Wrap(services.ErrInfrastructure, stageName, "read record", "", err)
	}
	if record != nil && record.Status == ledger.StatusDone && record.InputHash == candidate.UpstreamHash {
		// Idempotent skip: this input was already computed; the existing
		// artifact stands and the adapter is not re-invoked.
		logger.Debug("record already done for input", logging.String("input_hash", candidate.UpstreamHash))
		return outcomeSkipped, nil
	}

	var expected int64
	if record != nil {
		expected = record.Version
	}

	running, err := r.store.Apply(ctx, ledger.Transition{
		ItemID:          candidate.ItemID,
		Stage:           stageName,
		ExpectedVersion: expected,
		Status:          ledger.StatusRunning,
		InputHash:       candidate.UpstreamHash,
	})
	if errors.Is(err, ledger.ErrConflict) || errors.Is(err, ledger.ErrInvalidTransition) {
		// Another worker got here between eligibility and claim. Never retry
		// a conflicted transition blindly; the next sweep re-evaluates.
		logger.Debug("claim conflict, skipping", logging.Error(err))
		return outcomeSkipped, nil
	}
	if err != nil {
		return 0, services.Wrap(services.ErrInfrastructure, stageName, "claim record", "", err)
	}

	item, err := r.store.GetItem(ctx, candidate.ItemID)
	if err != nil || item == nil {
		return 0, services.Wrap(services.ErrInfrastructure, stageName, "read item", candidate.ItemID, err)
	}

	start := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("input_hash", candidate.UpstreamHash),
		logging.Int("attempt", running.Attempts+1))

	output, stageErr := r.invokeAdapter(ctx, *item, stageName, candidate.UpstreamHash)
	if stageErr != nil {
		return r.recordFailure(ctx, logger, running, stageErr)
	}

	ref, err := r.artifacts.Put(item.ID, stageName, output.Document)
	if err != nil {
		return 0, services.Wrap(services.ErrInfrastructure, stageName, "store artifact", "", err)
	}

	if _, err := r.store.Apply(ctx, ledger.Transition{
		ItemID:          running.ItemID,
		Stage:           running.Stage,
		ExpectedVersion: running.Version,
		Status:          ledger.StatusDone,
		InputHash:       running.InputHash,
		ArtifactHash:    ref.Hash,
		ResetAttempts:   true,
	}); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			logger.Warn("done transition conflicted", logging.Error(err))
			return outcomeSkipped, nil
		}
		return 0, services.Wrap(services.ErrInfrastructure, stageName, "record result", "", err)
	}

	if output.PublishID != "" {
		if err := r.store.SetPublishID(ctx, item.ID, output.PublishID); err != nil {
			return 0, services.Wrap(services.ErrInfrastructure, stageName, "record publish id", "", err)
		}
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("artifact_hash", ref.Hash),
		logging.Duration("stage_duration", time.Since(start)))
	return outcomeSucceeded, nil
}

func (r *Runner) invokeAdapter(ctx context.Context, item ledger.Item, stageName, upstreamHash string) (stage.Output, error) {
	input := stage.Input{
		Item:         item,
		UpstreamHash: upstreamHash,
		Lookup:       r.lookupFor(item.ID),
	}

	if upstream := stage.Upstream(stageName); upstream == "" {
		intakeDoc, err := json.Marshal(map[string]string{"canonical_url": item.CanonicalKey})
		if err != nil {
			return stage.Output{}, services.Wrap(services.ErrInfrastructure, stageName, "encode intake document", "", err)
		}
		input.Upstream = intakeDoc
	} else {
		data, err := r.artifacts.Get(upstreamHash)
		if err != nil {
			return stage.Output{}, services.Wrap(services.ErrInfrastructure, stageName, "load upstream artifact", upstreamHash, err)
		}
		input.Upstream = data
	}

	return r.adapter.Transform(ctx, input)
}

// lookupFor resolves another stage's DONE artifact for the same item,
// read-only, for adapters that combine several inputs.
func (r *Runner) lookupFor(itemID string) func(ctx context.Context, stageName string) ([]byte, error) {
	return func(ctx context.Context, stageName string) ([]byte, error) {
		record, err := r.store.GetRecord(ctx, itemID, stageName)
		if err != nil {
			return nil, err
		}
		if record == nil || record.Status != ledger.StatusDone {
			return nil, fmt.Errorf("stage %s has no completed artifact for item %s", stageName, itemID)
		}
		return r.artifacts.Get(record.ArtifactHash)
	}
}

func (r *Runner) recordFailure(ctx context.Context, logger *slog.Logger, running *ledger.Record, stageErr error) (outcome, error) {
	kind := services.Classify(stageErr)
	if kind == services.KindInfrastructure {
		return 0, stageErr
	}
	if kind == services.KindConflict {
		logger.Debug("adapter observed conflict, skipping", logging.Error(stageErr))
		return outcomeSkipped, nil
	}

	attempts := running.Attempts + 1
	terminal := kind != services.KindTransient || attempts >= r.opts.MaxAttempts

	if _, err := r.store.Apply(ctx, ledger.Transition{
		ItemID:            running.ItemID,
		Stage:             running.Stage,
		ExpectedVersion:   running.Version,
		Status:            ledger.StatusFailed,
		InputHash:         running.InputHash,
		ErrorKind:         string(kind),
		ErrorMessage:      stageErr.Error(),
		IncrementAttempts: true,
	}); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			logger.Warn("failure transition conflicted", logging.Error(err))
			return outcomeSkipped, nil
		}
		return 0, services.Wrap(services.ErrInfrastructure, running.Stage, "record failure", "", err)
	}

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_kind", string(kind)),
		logging.Int("attempt", attempts),
		logging.Bool("terminal", terminal),
		logging.Error(stageErr))
	return outcomeFailed, nil
}

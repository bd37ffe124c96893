// Package scheduler runs full pipeline sweeps: intake ingest followed by each
// stage runner in dependency order, all under one global exclusivity lease so
// two sweeps never compete for the same external quota.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"xaio/internal/artifact"
	"xaio/internal/config"
	"xaio/internal/intake"
	"xaio/internal/ledger"
	"xaio/internal/lease"
	"xaio/internal/logging"
	"xaio/internal/runner"
	"xaio/internal/services"
	"xaio/internal/stage"
)

// ErrSweepActive is returned when another sweep holds the global lease.
var ErrSweepActive = errors.New("scheduler: another sweep is active")

// StageResult is one stage's summary within a sweep.
type StageResult struct {
	Stage   string
	Summary runner.Summary
}

// Result reports a completed sweep.
type Result struct {
	SweepID  string
	Ingested int
	Stages   []StageResult
	Duration time.Duration
}

// Scheduler wires the ledger, leases, artifact store, and stage adapters
// into sweep execution.
type Scheduler struct {
	cfg       *config.Config
	store     *ledger.Store
	leases    *lease.Manager
	artifacts *artifact.Store
	source    intake.Source
	adapters  map[string]stage.Adapter
	logger    *slog.Logger
}

// New constructs a scheduler. source may be nil when no intake is configured;
// the sweep then only advances items already in the ledger.
func New(cfg *config.Config, store *ledger.Store, leases *lease.Manager, artifacts *artifact.Store, source intake.Source, adapters map[string]stage.Adapter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		leases:    leases,
		artifacts: artifacts,
		source:    source,
		adapters:  adapters,
		logger:    logger,
	}
}

// Sweep runs one full pass. Item-level failures never abort a sweep;
// infrastructure failures do, after releasing the global lease. An
// interrupted sweep leaves item leases to expire on their own TTL.
func (s *Scheduler) Sweep(ctx context.Context) (Result, error) {
	sweepID := uuid.NewString()
	ctx = services.WithSweepID(ctx, sweepID)
	logger := logging.WithContext(ctx, s.logger)

	if err := s.store.CheckHealth(ctx); err != nil {
		return Result{}, services.Wrap(services.ErrInfrastructure, "", "ledger health", "", err)
	}

	held, err := s.leases.Acquire(ctx, lease.SweepScope, s.cfg.SweepLeaseTTL())
	if errors.Is(err, lease.ErrBusy) {
		return Result{}, fmt.Errorf("%w: %v", ErrSweepActive, err)
	}
	if err != nil {
		return Result{}, services.Wrap(services.ErrInfrastructure, "", "acquire sweep lease", "", err)
	}
	defer func() {
		if releaseErr := s.leases.Release(context.WithoutCancel(ctx), held); releaseErr != nil {
			logger.Warn("release sweep lease", logging.Error(releaseErr))
		}
	}()

	start := time.Now()
	result := Result{SweepID: sweepID}
	logger.Info("sweep started", logging.String(logging.FieldEventType, "sweep_start"))

	if s.source != nil {
		ingested, err := intake.Ingest(ctx, s.source, s.store, logger)
		if err != nil {
			// The intake queue is an external collaborator; failing to read
			// it must not stall items already in the ledger.
			logger.Warn("intake ingest failed", logging.Error(err))
		}
		result.Ingested = ingested
	}

	runnerOpts := runner.Options{
		MaxAttempts: s.cfg.Pipeline.MaxAttempts,
		CoolDown:    s.cfg.RetryCoolDown(),
		LeaseTTL:    s.cfg.ItemLeaseTTL(),
	}

	for _, stageName := range stage.Order() {
		adapter, ok := s.adapters[stageName]
		if !ok {
			return result, services.Wrap(services.ErrConfiguration, stageName, "", "no adapter registered", nil)
		}
		stageRunner := runner.New(s.store, s.leases, s.artifacts, adapter, s.logger, runnerOpts)
		summary, err := stageRunner.Run(ctx, s.cfg.Pipeline.BatchSize)
		if err != nil {
			return result, err
		}
		result.Stages = append(result.Stages, StageResult{Stage: stageName, Summary: summary})

		if stageName == stage.Publish && s.source != nil {
			s.acknowledgePublished(ctx, logger, summary.Done)
		}
	}

	result.Duration = time.Since(start)
	logger.Info("sweep completed",
		logging.String(logging.FieldEventType, "sweep_complete"),
		logging.Int("ingested", result.Ingested),
		logging.Duration("sweep_duration", result.Duration))
	return result, nil
}

// acknowledgePublished reports published items back to the intake queue.
// Best effort: the ledger already holds the publish receipt.
func (s *Scheduler) acknowledgePublished(ctx context.Context, logger *slog.Logger, itemIDs []string) {
	for _, itemID := range itemIDs {
		item, err := s.store.GetItem(ctx, itemID)
		if err != nil || item == nil || item.SourceID == "" {
			continue
		}
		if err := s.source.MarkStatus(ctx, item.SourceID, intake.StatusPublished); err != nil {
			logger.Warn("mark intake row published",
				logging.String(logging.FieldItemID, itemID),
				logging.Error(err))
		}
	}
}

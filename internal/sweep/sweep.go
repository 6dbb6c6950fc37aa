// Package sweep implements the Background Sweeps: periodic
// recovery tasks that repair state an in-process kick signal could have
// lost to a crash, a restart, or a full kick-queue. Every sweep shares
// the same preflight/lock/bookkeeping/work/complete shape this file's
// Runner encodes — ticker-driven, log-and-continue on a per-item basis,
// never letting one bad row halt the pass.
package sweep

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/metrics"
	"github.com/ErlanBelekov/journey/internal/store"
)

// Runner executes the common preflight/lock/bookkeeping/work/complete
// shape. Concrete sweeps supply only the work closure.
type Runner struct {
	store  store.Store
	logger *slog.Logger
}

func NewRunner(st store.Store, logger *slog.Logger) *Runner {
	return &Runner{store: st, logger: logger.With("component", "sweep")}
}

// Work performs the sweep's batched scan and returns how many
// executions it touched. It must rescue its own per-item errors: a
// propagated error aborts the whole pass.
type Work func(ctx context.Context) (processed int, err error)

// Execute runs one sweep type through the shared shape. enabled and
// minInterval gate step 1 (cheap preflight); the advisory lock and
// recency re-check implement steps 2-3.
func (r *Runner) Execute(ctx context.Context, sweepType domain.SweepType, enabled bool, minInterval time.Duration, work Work) {
	logger := r.logger.With("sweep_type", sweepType)
	if !enabled {
		return
	}

	now := time.Now().UTC()
	due, err := r.due(ctx, sweepType, minInterval, now)
	if err != nil {
		logger.ErrorContext(ctx, "preflight failed", "error", err)
		return
	}
	if !due {
		return
	}

	run, ok, err := r.beginRun(ctx, sweepType, minInterval, now)
	if err != nil {
		logger.ErrorContext(ctx, "begin run failed", "error", err)
		return
	}
	if !ok {
		return // another process holds the lock, or ran one in the meantime
	}

	cycleStart := time.Now()
	processed, werr := work(ctx)
	metrics.SweepCycleDuration.WithLabelValues(string(sweepType)).Observe(time.Since(cycleStart).Seconds())
	if werr != nil {
		logger.ErrorContext(ctx, "sweep work failed", "error", werr, "processed_before_error", processed)
	} else {
		logger.InfoContext(ctx, "sweep completed", "processed", processed)
	}
	metrics.SweepRescuedTotal.WithLabelValues(string(sweepType)).Add(float64(processed))

	if err := r.completeRun(ctx, run.ID, processed); err != nil {
		logger.ErrorContext(ctx, "complete run failed", "error", err)
	}
}

func (r *Runner) due(ctx context.Context, sweepType domain.SweepType, minInterval time.Duration, now time.Time) (bool, error) {
	last, err := r.store.LastCompletedSweep(ctx, sweepType)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return now.Sub(last.StartedAt) >= minInterval, nil
}

func (r *Runner) beginRun(ctx context.Context, sweepType domain.SweepType, minInterval time.Duration, now time.Time) (*domain.SweepRun, bool, error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := tx.TryAdvisoryLock(ctx, advisoryKey(sweepType))
	if err != nil {
		return nil, false, err
	}
	if !locked {
		return nil, false, nil
	}

	// Re-check the recency invariant: another process may have completed
	// a run between the cheap preflight and acquiring this lock.
	due, err := r.due(ctx, sweepType, minInterval, now)
	if err != nil {
		return nil, false, err
	}
	if !due {
		return nil, false, nil
	}

	run := &domain.SweepRun{
		ID:        store.NewSweepRunID(),
		SweepType: sweepType,
		StartedAt: now,
	}
	if err := tx.InsertSweepRun(ctx, run); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return run, true, nil
}

func (r *Runner) completeRun(ctx context.Context, runID string, processed int) error {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.CompleteSweepRun(ctx, runID, time.Now().UTC(), processed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func advisoryKey(t domain.SweepType) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(t))
	return int64(h.Sum64())
}

// dedupe returns ids with duplicates removed, preserving first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

const batchSize = 100

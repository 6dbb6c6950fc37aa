package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/kick"
	"github.com/ErlanBelekov/journey/internal/metrics"
	"github.com/ErlanBelekov/journey/internal/retry"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/ErlanBelekov/journey/internal/value"
)

// Worker executes one started computation to completion. It is invoked
// once per dispatched computation — the Advancer decides concurrency —
// with an optional heartbeat goroutine running alongside the work.
type Worker struct {
	store  store.Store
	bus    *kick.Bus
	notify *kick.Notifier
	logger *slog.Logger
}

func NewWorker(st store.Store, bus *kick.Bus, notify *kick.Notifier, logger *slog.Logger) *Worker {
	return &Worker{store: st, bus: bus, notify: notify, logger: logger.With("component", "worker")}
}

// Run is the Dispatch func Advancer invokes for each newly-started
// computation. It never returns an error to its caller: every failure is
// persisted as part of the computation's own state instead.
func (w *Worker) Run(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition) {
	logger := w.logger.With("execution_id", ex.ID, "node", comp.NodeName, "computation_id", comp.ID)

	runCtx := ctx
	var cancel context.CancelFunc
	if comp.Deadline != nil {
		runCtx, cancel = context.WithDeadline(ctx, *comp.Deadline)
		defer cancel()
	}

	if node.Retry.HeartbeatInterval > 0 {
		hbCtx, stopHeartbeat := context.WithCancel(runCtx)
		defer stopHeartbeat()
		go w.heartbeat(hbCtx, comp.ID, time.Duration(node.Retry.HeartbeatInterval)*time.Second, time.Duration(node.Retry.HeartbeatTimeout)*time.Second)
	}

	metrics.ComputationsInFlight.Inc()
	defer metrics.ComputationsInFlight.Dec()

	start := time.Now()
	inputs := Inputs(ex, node.Gate)
	outcome := invoke(runCtx, node, inputs)

	outcomeLabel := "success"
	if !outcome.IsOk() {
		outcomeLabel = "failed"
	}
	metrics.ComputationDuration.WithLabelValues(string(comp.ComputationType), outcomeLabel).Observe(time.Since(start).Seconds())
	metrics.ComputationsCompletedTotal.WithLabelValues(outcomeLabel).Inc()

	logger.InfoContext(ctx, "computation finished", "ok", outcome.IsOk())

	if outcome.IsOk() {
		w.persistSuccess(ctx, ex, comp, node, outcome, logger)
	} else {
		w.persistFailure(ctx, ex, comp, node, outcome, logger)
	}

	if !w.bus.Kick(ex.ID) {
		logger.WarnContext(ctx, "kick queue full, ignoring: next sweep will recover")
	}
}

// invoke runs the node function inside a panic boundary; any unwind
// becomes an error outcome rather than taking the process down.
func invoke(ctx context.Context, node catalog.NodeDefinition, inputs map[string]value.Value) (out domain.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = domain.Errored(fmt.Errorf("node %s panicked: %v", node.Name, r))
		}
	}()
	return node.Fn(ctx, inputs)
}

func (w *Worker) heartbeat(ctx context.Context, computationID string, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if err := w.store.Heartbeat(ctx, computationID, now, now.Add(timeout)); err != nil {
				w.logger.WarnContext(ctx, "heartbeat write failed", "computation_id", computationID, "error", err)
			}
		}
	}
}

func (w *Worker) persistSuccess(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition, outcome domain.Outcome, logger *slog.Logger) {
	targetNode := comp.NodeName
	if node.Type == domain.NodeMutate {
		targetNode = node.Mutates
	}

	tx, err := w.store.Begin(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "begin tx for success failed", "error", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := tx.LockExecution(ctx, ex.ID, store.LoadOptions{})
	if err != nil {
		logger.ErrorContext(ctx, "lock execution for success failed", "error", err)
		return
	}

	rev, err := tx.BumpRevision(ctx, ex.ID)
	if err != nil {
		logger.ErrorContext(ctx, "bump revision failed", "error", err)
		return
	}
	now := time.Now().UTC()

	target := cur.Value(targetNode)
	if target == nil {
		logger.ErrorContext(ctx, "mutation target value row missing", "target", targetNode)
		return
	}
	newValue := outcome.Value
	if node.Type == domain.NodeHistorian {
		newValue = prependHistory(target.NodeValue, outcome.Value, node.MaxEntries)
	}
	target.NodeValue = newValue
	target.SetTime = &now
	target.ExRevision = &rev
	target.UpdatedAt = now
	if err := tx.UpsertValue(ctx, target); err != nil {
		logger.ErrorContext(ctx, "upsert value failed", "error", err)
		return
	}

	comp.State = domain.StateSuccess
	comp.CompletionTime = &now
	comp.ExRevisionAtCompletion = &rev
	comp.UpdatedAt = now
	if err := tx.UpdateComputation(ctx, comp); err != nil {
		logger.ErrorContext(ctx, "update computation to success failed", "error", err)
		return
	}

	if node.Type == domain.NodeArchive {
		if err := tx.SetArchived(ctx, ex.ID, &now); err != nil {
			logger.ErrorContext(ctx, "archive execution failed", "error", err)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		logger.ErrorContext(ctx, "commit success failed", "error", err)
		return
	}

	w.notify.Notify(ex.ID)

	if node.OnSave != nil {
		if err := node.OnSave(ctx, targetNode, newValue); err != nil {
			logger.WarnContext(ctx, "f_on_save failed", "node", targetNode, "error", err)
		}
	}
}

// prependHistory pushes the newest snapshot onto the front of a
// historian node's list and trims it to maxEntries (newest-first,
// bounded).
func prependHistory(prev, entry value.Value, maxEntries int) value.Value {
	hist := []value.Value{entry}
	if prev.Kind() == value.KindList {
		hist = append(hist, prev.ListValue()...)
	}
	if maxEntries > 0 && len(hist) > maxEntries {
		hist = hist[:maxEntries]
	}
	return value.List(hist)
}

func (w *Worker) persistFailure(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition, outcome domain.Outcome, logger *slog.Logger) {
	attempts, err := w.store.TerminalAttemptsSinceLastSuccess(ctx, ex.ID, comp.NodeName)
	if err != nil {
		logger.ErrorContext(ctx, "count terminal attempts failed", "error", err)
		attempts = node.Retry.MaxRetries // fail closed rather than risk an unbounded retry loop
	}

	tx, err := w.store.Begin(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "begin tx for failure failed", "error", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.LockExecution(ctx, ex.ID, store.LoadOptions{}); err != nil {
		logger.ErrorContext(ctx, "lock execution for failure failed", "error", err)
		return
	}

	now := time.Now().UTC()
	comp.State = domain.StateFailed
	comp.CompletionTime = &now
	comp.ErrorDetails = outcome.Err.Error()
	comp.UpdatedAt = now
	if err := tx.UpdateComputation(ctx, comp); err != nil {
		logger.ErrorContext(ctx, "update computation to failed failed", "error", err)
		return
	}

	// attempts was counted while this computation was still computing, so
	// it is the number of prior terminal attempts — the count the policy
	// bounds against max_retries (the failure just persisted above is the
	// attempt being retried, not a prior one).
	if successor, ok := retry.Decide(node.Retry, ex.ID, comp.NodeName, comp.ComputationType, attempts, now); ok {
		successor.ID = store.NewComputationID()
		if err := tx.InsertComputation(ctx, successor); err != nil {
			logger.ErrorContext(ctx, "insert retry successor failed", "error", err)
			return
		}
	} else {
		logger.InfoContext(ctx, "retries exhausted, node stays terminally failed", "prior_attempts", attempts, "max_retries", node.Retry.MaxRetries)
	}

	if err := tx.Commit(ctx); err != nil {
		logger.ErrorContext(ctx, "commit failure failed", "error", err)
		return
	}

	w.notify.Notify(ex.ID)
}

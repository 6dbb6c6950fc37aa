// Package scheduler implements the Advancer and Worker: the two halves
// of the dataflow engine's core loop. The Advancer decides, under the
// execution's row lock, which computations to start; the Worker runs one
// started computation to completion and persists the outcome.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/condition"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/metrics"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/ErlanBelekov/journey/internal/value"
)

// Dispatch hands a started computation off for execution. The scheduler
// package's own Worker satisfies this; tests can substitute a fake.
type Dispatch func(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition)

// Advancer implements advance(execution).
type Advancer struct {
	store    store.Store
	catalog  *catalog.Catalog
	dispatch Dispatch
	logger   *slog.Logger
}

func NewAdvancer(st store.Store, cat *catalog.Catalog, dispatch Dispatch, logger *slog.Logger) *Advancer {
	return &Advancer{store: st, catalog: cat, dispatch: dispatch, logger: logger.With("component", "advancer")}
}

// Advance is idempotent: calling it repeatedly with no intervening
// mutation is a no-op, which is what lets every sweep recovery just call
// it again rather than reimplementing recovery logic.
func (a *Advancer) Advance(ctx context.Context, executionID string) error {
	start := time.Now()
	defer func() { metrics.AdvanceLatency.Observe(time.Since(start).Seconds()) }()

	tx, err := a.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ex, err := tx.LockExecution(ctx, executionID, store.NonTerminal())
	if err != nil {
		return err
	}
	if ex.IsArchived() {
		return tx.Commit(ctx)
	}

	graph := a.catalog.Get(ex.GraphName, ex.GraphVersion)
	if graph == nil {
		a.logger.WarnContext(ctx, "advance: graph not registered, skipping",
			"execution_id", executionID, "graph_name", ex.GraphName, "graph_version", ex.GraphVersion)
		return tx.Commit(ctx)
	}

	now := time.Now().UTC()
	type started struct {
		comp *domain.Computation
		node catalog.NodeDefinition
	}
	var startedPairs []started

	for _, name := range graph.NodeNames() {
		node := graph.Nodes[name]
		if node.Type.IsInput() {
			continue
		}

		comp := ex.PendingComputation(name)
		if comp == nil {
			// No pending row. Either the node's last attempt succeeded
			// (reseed only if an upstream value has moved since, so
			// repeated Advance calls stay no-ops), or its retries were
			// exhausted (never reseed: a further input mutation does not
			// auto-retry, an operator has to force one).
			if !needsRecompute(ex, node) {
				continue
			}
			comp = &domain.Computation{
				ID:              store.NewComputationID(),
				ExecutionID:     ex.ID,
				NodeName:        name,
				ComputationType: node.Type,
				State:           domain.StateNotSet,
				ComputedWith:    map[string]uint64{},
				InsertedAt:      now,
				UpdatedAt:       now,
			}
			if err := tx.InsertComputation(ctx, comp); err != nil {
				return err
			}
		}

		if comp.State == domain.StateComputing {
			continue // at-most-one-pending: already running
		}
		if !comp.IsDue(now) {
			continue // retry backoff not yet elapsed
		}

		if node.Gate != nil {
			result := condition.Evaluate(node.Gate, ex)
			if !result.Met {
				continue
			}
		}

		comp.State = domain.StateComputing
		comp.StartTime = &now
		startRev := ex.Revision
		comp.ExRevisionAtStart = &startRev
		comp.ComputedWith = snapshotInputs(ex, node.Gate)
		if node.Retry.AbandonAfterSeconds > 0 {
			deadline := now.Add(time.Duration(node.Retry.AbandonAfterSeconds) * time.Second)
			comp.Deadline = &deadline
		}
		if node.Retry.HeartbeatInterval > 0 {
			comp.LastHeartbeatAt = &now
			hbDeadline := now.Add(time.Duration(node.Retry.HeartbeatTimeout) * time.Second)
			comp.HeartbeatDeadline = &hbDeadline
		}
		comp.UpdatedAt = now

		if err := tx.UpdateComputation(ctx, comp); err != nil {
			return err
		}
		startedPairs = append(startedPairs, started{comp: comp, node: node})
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for _, p := range startedPairs {
		a.dispatch(ctx, ex, p.comp, p.node)
	}
	return nil
}

// needsRecompute decides whether a node with no pending computation row
// gets a fresh not_set one. The node's output slot (its own value row,
// or its mutation target's) carries the ex_revision of its last success;
// the node is stale iff some gate dependency has been written at a
// higher revision since. A node whose output was never written has no
// success to go stale — its missing pending row means retries ran out.
func needsRecompute(ex *domain.Execution, node catalog.NodeDefinition) bool {
	targetNode := node.Name
	if node.Type == domain.NodeMutate {
		targetNode = node.Mutates
	}
	out := ex.Value(targetNode)
	if !out.IsSet() || out.ExRevision == nil {
		return false
	}
	if node.Gate == nil {
		// Recurring schedules with no upstream get successors from the
		// RegenerateScheduleRecurring sweep, not from here.
		return false
	}
	for _, dep := range condition.Nodes(node.Gate) {
		if v := ex.Value(dep); v.IsSet() && v.ExRevision != nil && *v.ExRevision > *out.ExRevision {
			return true
		}
	}
	return false
}

// snapshotInputs captures the {node_name -> ex_revision} the worker was
// fed, keyed by the nodes the gate references.
func snapshotInputs(ex *domain.Execution, gate condition.Cond) map[string]uint64 {
	out := map[string]uint64{}
	if gate == nil {
		return out
	}
	for _, dep := range condition.Nodes(gate) {
		if v := ex.Value(dep); v != nil && v.ExRevision != nil {
			out[dep] = *v.ExRevision
		} else {
			out[dep] = 0
		}
	}
	return out
}

// Inputs builds the upstream value snapshot a node function is invoked
// with: one entry per node its gate references.
func Inputs(ex *domain.Execution, gate condition.Cond) map[string]value.Value {
	out := map[string]value.Value{}
	if gate == nil {
		return out
	}
	for _, dep := range condition.Nodes(gate) {
		if v := ex.Value(dep); v != nil {
			out[dep] = v.NodeValue
		} else {
			out[dep] = value.Null()
		}
	}
	return out
}

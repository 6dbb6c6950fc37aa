package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/retry"
	"github.com/ErlanBelekov/journey/internal/store"
)

// advancer is the subset of scheduler.Advancer every sweep needs, kept
// local so this package doesn't depend on scheduler's dispatch wiring.
type advancer interface {
	Advance(ctx context.Context, executionID string) error
}

// AbandonedComputations finds computing rows past their deadline or
// heartbeat timeout and terminates them.
type AbandonedComputations struct {
	store    store.Store
	catalog  *catalog.Catalog
	advancer advancer
	logger   *slog.Logger
}

func NewAbandonedComputations(st store.Store, cat *catalog.Catalog, adv advancer, logger *slog.Logger) *AbandonedComputations {
	return &AbandonedComputations{store: st, catalog: cat, advancer: adv, logger: logger.With("sweep", domain.SweepAbandonedComputations)}
}

func (s *AbandonedComputations) Work(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	var touched []string

	for {
		rows, err := s.store.OverdueComputing(ctx, now, batchSize)
		if err != nil {
			return len(dedupe(touched)), err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if err := s.abandonOne(ctx, row, now); err != nil {
				s.logger.ErrorContext(ctx, "abandon computation failed", "computation_id", row.ID, "error", err)
				continue
			}
			touched = append(touched, row.ExecutionID)
		}

		if len(rows) < batchSize {
			break
		}
	}

	deduped := dedupe(touched)
	for _, id := range deduped {
		if err := s.advancer.Advance(ctx, id); err != nil {
			s.logger.ErrorContext(ctx, "advance after abandon failed", "execution_id", id, "error", err)
		}
	}
	return len(deduped), nil
}

func (s *AbandonedComputations) abandonOne(ctx context.Context, row *domain.Computation, now time.Time) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ex, err := tx.LockExecution(ctx, row.ExecutionID, store.NonTerminal())
	if err != nil {
		return err
	}
	if ex.IsArchived() {
		return tx.Commit(ctx)
	}

	graph := s.catalog.Get(ex.GraphName, ex.GraphVersion)
	if graph == nil {
		s.logger.WarnContext(ctx, "graph no longer registered, skipping", "execution_id", ex.ID)
		return tx.Commit(ctx)
	}

	comp := findComputation(ex, row.ID)
	if comp == nil || comp.State != domain.StateComputing || !comp.IsOverdue(now) {
		return tx.Commit(ctx) // already recovered by another pass
	}

	// Count prior terminal attempts before this row turns terminal, so
	// the policy sees the same "attempts so far" the worker's failure
	// path does.
	attempts, err := s.store.TerminalAttemptsSinceLastSuccess(ctx, ex.ID, comp.NodeName)
	if err != nil {
		return err
	}

	comp.State = domain.StateAbandoned
	comp.CompletionTime = &now
	comp.UpdatedAt = now
	if err := tx.UpdateComputation(ctx, comp); err != nil {
		return err
	}

	node, ok := graph.Nodes[comp.NodeName]
	if !ok {
		return tx.Commit(ctx)
	}

	if successor, ok := retry.Decide(node.Retry, ex.ID, comp.NodeName, comp.ComputationType, attempts, now); ok {
		successor.ID = store.NewComputationID()
		if err := tx.InsertComputation(ctx, successor); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func findComputation(ex *domain.Execution, id string) *domain.Computation {
	for _, c := range ex.Computations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
)

// RegenerateScheduleRecurring finds recurring-schedule nodes whose most
// recent successful computation fired in the past and which have no
// pending successor, and inserts one so the cycle continues.
type RegenerateScheduleRecurring struct {
	store  store.Store
	logger *slog.Logger
}

func NewRegenerateScheduleRecurring(st store.Store, logger *slog.Logger) *RegenerateScheduleRecurring {
	return &RegenerateScheduleRecurring{store: st, logger: logger.With("sweep", domain.SweepRegenerateScheduleRecurring)}
}

func (s *RegenerateScheduleRecurring) Work(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	processed := 0

	for {
		due, err := s.store.RecurringSchedulesNeedingSuccessor(ctx, now, batchSize)
		if err != nil {
			return processed, err
		}
		if len(due) == 0 {
			break
		}

		for _, comp := range due {
			if err := s.regenerateOne(ctx, comp, now); err != nil {
				s.logger.ErrorContext(ctx, "regenerate successor failed", "execution_id", comp.ExecutionID, "node", comp.NodeName, "error", err)
				continue
			}
			processed++
		}

		if len(due) < batchSize {
			break
		}
	}
	return processed, nil
}

func (s *RegenerateScheduleRecurring) regenerateOne(ctx context.Context, comp *domain.Computation, now time.Time) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ex, err := tx.LockExecution(ctx, comp.ExecutionID, store.NonTerminal())
	if err != nil {
		return err
	}
	if ex.IsArchived() {
		return tx.Commit(ctx)
	}
	if ex.PendingComputation(comp.NodeName) != nil {
		return tx.Commit(ctx) // a successor already exists; nothing to do
	}

	successor := &domain.Computation{
		ID:              store.NewComputationID(),
		ExecutionID:     ex.ID,
		NodeName:        comp.NodeName,
		ComputationType: comp.ComputationType,
		State:           domain.StateNotSet,
		ComputedWith:    map[string]uint64{},
		InsertedAt:      now,
		UpdatedAt:       now,
	}
	if err := tx.InsertComputation(ctx, successor); err != nil {
		return err
	}
	if err := tx.TouchUpdatedAt(ctx, ex.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

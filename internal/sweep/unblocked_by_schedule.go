package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
)

// UnblockedBySchedule finds executions whose schedule value has just
// come due and advances them.
type UnblockedBySchedule struct {
	store    store.Store
	advancer advancer
	window   time.Duration
	logger   *slog.Logger
}

func NewUnblockedBySchedule(st store.Store, adv advancer, window time.Duration, logger *slog.Logger) *UnblockedBySchedule {
	return &UnblockedBySchedule{store: st, advancer: adv, window: window, logger: logger.With("sweep", domain.SweepUnblockedBySchedule)}
}

func (s *UnblockedBySchedule) Work(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	ids, err := s.store.ExecutionsWithDueSchedule(ctx, now, now.Add(-s.window), batchSize)
	if err != nil {
		return 0, err
	}

	for _, id := range dedupe(ids) {
		if err := s.advancer.Advance(ctx, id); err != nil {
			s.logger.ErrorContext(ctx, "advance failed", "execution_id", id, "error", err)
		}
	}
	return len(ids), nil
}

package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
)

// ScheduleNodes finds executions with a pending schedule-kind
// computation whose execution was touched since the sweep's overlap
// window opened, and advances them.
type ScheduleNodes struct {
	store        store.Store
	advancer     advancer
	overlap      time.Duration
	logger       *slog.Logger
}

func NewScheduleNodes(st store.Store, adv advancer, overlap time.Duration, logger *slog.Logger) *ScheduleNodes {
	return &ScheduleNodes{store: st, advancer: adv, overlap: overlap, logger: logger.With("sweep", domain.SweepScheduleNodes)}
}

func (s *ScheduleNodes) Work(ctx context.Context) (int, error) {
	last, err := s.store.LastCompletedSweep(ctx, domain.SweepScheduleNodes)
	if err != nil {
		return 0, err
	}
	since := time.Now().UTC().Add(-s.overlap)
	if last != nil {
		since = last.StartedAt.Add(-s.overlap)
	}

	ids, err := s.store.ExecutionsWithPendingScheduleSince(ctx, since, batchSize)
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

package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
)

// StalledExecutions is the long-interval catch-all recovering
// executions whose in-memory advance signal was lost before any
// computation row reached computing.
type StalledExecutions struct {
	store         store.Store
	advancer      advancer
	overlap       time.Duration
	tooNewCutoff  time.Duration
	preferredHour *int
	logger        *slog.Logger
}

func NewStalledExecutions(st store.Store, adv advancer, overlap, tooNewCutoff time.Duration, preferredHour *int, logger *slog.Logger) *StalledExecutions {
	return &StalledExecutions{
		store: st, advancer: adv, overlap: overlap, tooNewCutoff: tooNewCutoff,
		preferredHour: preferredHour, logger: logger.With("sweep", domain.SweepStalledExecutions),
	}
}

// Due additionally enforces the preferred-hour-of-day restriction before
// the Runner ever begins a transaction — cheaper than the generic
// min-interval preflight alone.
func (s *StalledExecutions) Due(now time.Time) bool {
	if s.preferredHour == nil {
		return true
	}
	return now.UTC().Hour() == *s.preferredHour
}

func (s *StalledExecutions) Work(ctx context.Context) (int, error) {
	last, err := s.store.LastCompletedSweep(ctx, domain.SweepStalledExecutions)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	after := now.Add(-24 * time.Hour)
	if last != nil {
		after = last.StartedAt.Add(-s.overlap)
	}
	before := now.Add(-s.tooNewCutoff)

	ids, err := s.store.ExecutionsUpdatedBetween(ctx, after, before, batchSize)
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

package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
)

// MissedSchedulesCatchall is the ultra-long-interval sweep intended for
// system-downtime recovery: executions with a past-due schedule value
// that are older than a recency boundary, scanned within a configurable
// lookback window.
type MissedSchedulesCatchall struct {
	store         store.Store
	advancer      advancer
	lookback      time.Duration
	recency       time.Duration
	preferredHour *int
	logger        *slog.Logger
}

func NewMissedSchedulesCatchall(st store.Store, adv advancer, lookback, recency time.Duration, preferredHour *int, logger *slog.Logger) *MissedSchedulesCatchall {
	return &MissedSchedulesCatchall{
		store: st, advancer: adv, lookback: lookback, recency: recency,
		preferredHour: preferredHour, logger: logger.With("sweep", domain.SweepMissedSchedulesCatchall),
	}
}

func (s *MissedSchedulesCatchall) Due(now time.Time) bool {
	if s.preferredHour == nil {
		return true
	}
	return now.UTC().Hour() == *s.preferredHour
}

func (s *MissedSchedulesCatchall) Work(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	ids, err := s.store.ExecutionsWithPastSchedule(ctx, now.Add(-s.lookback), now.Add(-s.recency), batchSize)
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

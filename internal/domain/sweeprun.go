package domain

import "time"

// SweepType identifies which background sweep a SweepRun audits.
type SweepType string

const (
	SweepAbandonedComputations      SweepType = "abandoned_computations"
	SweepScheduleNodes              SweepType = "schedule_nodes"
	SweepUnblockedBySchedule        SweepType = "unblocked_by_schedule"
	SweepRegenerateScheduleRecurring SweepType = "regenerate_schedule_recurring"
	SweepStalledExecutions          SweepType = "stalled_executions"
	SweepMissedSchedulesCatchall    SweepType = "missed_schedules_catchall"
)

// SweepRun audits one execution of a background sweep: when it started,
// when (if ever) it completed, and how many executions it touched. The
// most recent completed run's started_at is the watermark the next run's
// cutoff is computed from.
type SweepRun struct {
	ID                  string     `json:"id"`
	SweepType           SweepType  `json:"sweepType"`
	StartedAt           time.Time  `json:"startedAt"`
	CompletedAt         *time.Time `json:"completedAt"`
	ExecutionsProcessed *int       `json:"executionsProcessed"`
	InsertedAt          time.Time  `json:"insertedAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (s *SweepRun) IsComplete() bool { return s != nil && s.CompletedAt != nil }

// Package retry implements the Retry Policy: given a node's
// per-node RetryConfig and its terminal-attempt count since the last
// success, decide whether a fresh not_set successor computation should
// be scheduled, and when.
package retry

import (
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
)

// Decide returns the successor computation to insert for node after
// attempts prior terminal (failed/abandoned) rows since the last
// success, or ok=false if retries are exhausted and the node should stay
// terminally failed.
func Decide(cfg catalog.RetryConfig, executionID, nodeName string, computationType domain.NodeType, attempts int, now time.Time) (successor *domain.Computation, ok bool) {
	if attempts >= cfg.MaxRetries {
		return nil, false
	}
	backoffMS := cfg.BackoffFor(attempts)
	scheduled := now.Add(time.Duration(backoffMS) * time.Millisecond)
	return &domain.Computation{
		NodeName:        nodeName,
		ExecutionID:     executionID,
		ComputationType: computationType,
		State:           domain.StateNotSet,
		ScheduledTime:   &scheduled,
		ComputedWith:    map[string]uint64{},
		InsertedAt:      now,
		UpdatedAt:       now,
	}, true
}

// Force builds the successor an operator-initiated retry inserts
// regardless of prior attempt count.
func Force(executionID, nodeName string, computationType domain.NodeType, now time.Time) *domain.Computation {
	return &domain.Computation{
		NodeName:        nodeName,
		ExecutionID:     executionID,
		ComputationType: computationType,
		State:           domain.StateNotSet,
		ComputedWith:    map[string]uint64{},
		InsertedAt:      now,
		UpdatedAt:       now,
	}
}

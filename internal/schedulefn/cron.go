// Package schedulefn provides node function constructors for
// schedule_once and schedule_recurring nodes, whose output is an
// epoch-second "fire at/after" value. The cron-based constructors turn a
// cron expression into the next future fire time, skipping missed runs.
package schedulefn

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/value"
)

// Once returns a schedule_once node function that fires delay after the
// execution first reaches it.
func Once(delay time.Duration) func(ctx context.Context, inputs map[string]value.Value) domain.Outcome {
	return func(ctx context.Context, inputs map[string]value.Value) domain.Outcome {
		return domain.Ok(value.Int(time.Now().Add(delay).Unix()))
	}
}

// Recurring returns a schedule_recurring node function driven by a
// standard five-field cron expression. Each invocation computes the next
// future fire time strictly after now, skipping any runs that were
// missed while the node wasn't being advanced.
func Recurring(cronExpr string) (func(ctx context.Context, inputs map[string]value.Value) domain.Outcome, error) {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("schedulefn: invalid cron expression %q: %w", cronExpr, err)
	}

	return func(ctx context.Context, inputs map[string]value.Value) domain.Outcome {
		now := time.Now()
		next := sched.Next(now)
		return domain.Ok(value.Int(next.Unix()))
	}, nil
}

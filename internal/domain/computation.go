package domain

import (
	"time"

	"github.com/ErlanBelekov/journey/internal/value"
)

// Computation is one attempt (or pending attempt) to produce a derived
// node's value. Rows are append-only once terminal: a fresh not_set
// successor is inserted rather than the old row being reused.
type Computation struct {
	ID                     string            `json:"id"`
	ExecutionID            string            `json:"executionId"`
	NodeName               string            `json:"nodeName"`
	ComputationType        NodeType          `json:"computationType"`
	State                  ComputationState  `json:"state"`
	ExRevisionAtStart      *uint64           `json:"exRevisionAtStart"`
	ExRevisionAtCompletion *uint64           `json:"exRevisionAtCompletion"`
	ScheduledTime          *time.Time        `json:"scheduledTime"`
	StartTime              *time.Time        `json:"startTime"`
	CompletionTime         *time.Time        `json:"completionTime"`
	Deadline               *time.Time        `json:"deadline"`
	ErrorDetails           string            `json:"errorDetails,omitempty"`
	ComputedWith           map[string]uint64 `json:"computedWith,omitempty"`
	LastHeartbeatAt        *time.Time        `json:"lastHeartbeatAt"`
	HeartbeatDeadline      *time.Time        `json:"heartbeatDeadline"`
	InsertedAt             time.Time         `json:"insertedAt"`
	UpdatedAt              time.Time         `json:"updatedAt"`
}

// IsDue reports whether a not_set computation's scheduled_time (set by
// the retry policy, or nil for a first attempt) has arrived.
func (c *Computation) IsDue(now time.Time) bool {
	return c.ScheduledTime == nil || !c.ScheduledTime.After(now)
}

// IsOverdue reports whether a computing row's deadline or heartbeat has
// lapsed — the condition the Abandoned sweep (4.G) looks for.
func (c *Computation) IsOverdue(now time.Time) bool {
	if c.State != StateComputing {
		return false
	}
	if c.Deadline != nil && c.Deadline.Before(now) {
		return true
	}
	if c.HeartbeatDeadline != nil && c.HeartbeatDeadline.Before(now) {
		return true
	}
	return false
}

// Snapshot is the {node_name -> ex_revision} form computed_with records,
// captured at dispatch time so a completed computation can be debugged
// against exactly the inputs it observed.
type Snapshot map[string]uint64

// Outcome is what a user-supplied node function returns: either a
// produced value, or an error reason. Any panic/exception during
// invocation is converted to Outcome{Err: ...} by the Worker.
type Outcome struct {
	Value value.Value
	Err   error
}

func Ok(v value.Value) Outcome  { return Outcome{Value: v} }
func Errored(err error) Outcome { return Outcome{Err: err} }

func (o Outcome) IsOk() bool { return o.Err == nil }

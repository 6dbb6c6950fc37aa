package domain

import (
	"time"

	"github.com/ErlanBelekov/journey/internal/value"
)

// ValueRow is the durable slot for one (execution, node) pair. Exactly one
// exists per node for the life of an execution.
type ValueRow struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"executionId"`
	NodeName    string         `json:"nodeName"`
	NodeType    NodeType       `json:"nodeType"`
	NodeValue   value.Value    `json:"nodeValue"`
	SetTime     *time.Time     `json:"setTime"`
	ExRevision  *uint64        `json:"exRevision"`
	Metadata    value.Value    `json:"metadata"`
	InsertedAt  time.Time      `json:"insertedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// IsSet reports whether this slot has ever been written, distinguishing a
// JSON-null set value from an unset one: set_time is the marker.
func (v *ValueRow) IsSet() bool {
	return v != nil && v.SetTime != nil
}

package domain

import "time"

// Execution is one durable instance of a graph.
type Execution struct {
	ID           string     `json:"id"`
	GraphName    string     `json:"graphName"`
	GraphVersion string     `json:"graphVersion"`
	GraphHash    string     `json:"graphHash"`
	Revision     uint64     `json:"revision"`
	ArchivedAt   *time.Time `json:"archivedAt,omitempty"`
	InsertedAt   time.Time  `json:"insertedAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	// Eager-loaded collections. Populated by store.LoadExecution; empty
	// otherwise. Not persisted as columns of the executions table.
	Values       []*ValueRow    `json:"values,omitempty"`
	Computations []*Computation `json:"computations,omitempty"`
}

// IsArchived reports whether the scheduler and sweeps must skip this
// execution.
func (e *Execution) IsArchived() bool {
	return e != nil && e.ArchivedAt != nil
}

// Value returns the value row for nodeName, or nil if none is loaded.
func (e *Execution) Value(nodeName string) *ValueRow {
	for _, v := range e.Values {
		if v.NodeName == nodeName {
			return v
		}
	}
	return nil
}

// PendingComputation returns the loaded computation for nodeName that is
// in {not_set, computing}, or nil if none is loaded.
func (e *Execution) PendingComputation(nodeName string) *Computation {
	for _, c := range e.Computations {
		if c.NodeName == nodeName && c.State.IsPending() {
			return c
		}
	}
	return nil
}

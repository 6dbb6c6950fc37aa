package store

import "github.com/google/uuid"

// ID prefixes make a bare ID self-describing in logs and URLs:
// executions, values, computations, and sweep runs are otherwise
// indistinguishable uuids in the same log line.
const (
	PrefixExecution  = "ex"
	PrefixValue      = "val"
	PrefixComputation = "cp"
	PrefixSweepRun   = "sw"
)

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func NewExecutionID() string  { return newID(PrefixExecution) }
func NewValueID() string      { return newID(PrefixValue) }
func NewComputationID() string { return newID(PrefixComputation) }
func NewSweepRunID() string   { return newID(PrefixSweepRun) }

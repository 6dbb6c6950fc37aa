// Package store is the abstract persistence contract the engine core
// depends on. The core never imports
// internal/infrastructure/postgres directly; it is wired a Store at
// construction time. The relational implementation
// (internal/infrastructure/postgres) is authoritative; tests supply an
// in-memory fake of this same interface rather than a shipped in-memory
// backend.
package store

import (
	"context"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
)

// LoadOptions filters an eager execution load.
type LoadOptions struct {
	// ComputationStates, if non-empty, restricts the loaded computations
	// to these states. Advance loads only {not_set, computing} (the
	// non-terminal ones); debugging/read paths may load everything.
	ComputationStates []domain.ComputationState
}

// NonTerminal is the filter Advance uses: it only ever needs the values
// and the still-pending computations.
func NonTerminal() LoadOptions {
	return LoadOptions{ComputationStates: []domain.ComputationState{domain.StateNotSet, domain.StateComputing}}
}

// Tx is a single database transaction plus the row lock already taken on
// one execution (if LockExecution was called). All value/computation
// writes that must be atomic with a revision bump happen through a Tx.
type Tx interface {
	// LockExecution takes SELECT ... FOR UPDATE on the execution row and
	// returns it eager-loaded per opts. Concurrent mutations/advances on
	// the same execution serialize here.
	LockExecution(ctx context.Context, id string, opts LoadOptions) (*domain.Execution, error)

	// TryAdvisoryLock attempts a transaction-scoped advisory lock keyed
	// by key. It auto-releases at Commit/Rollback.
	TryAdvisoryLock(ctx context.Context, key int64) (bool, error)

	// UpsertValue writes a value row (insert on first write, update
	// thereafter; there is at most one row per node).
	UpsertValue(ctx context.Context, row *domain.ValueRow) error

	// InsertComputation appends a fresh computation row.
	InsertComputation(ctx context.Context, c *domain.Computation) error

	// UpdateComputation persists a state transition on an existing row.
	UpdateComputation(ctx context.Context, c *domain.Computation) error

	// BumpRevision atomically increments and returns the execution's new
	// revision: read current under row lock, write current+1.
	BumpRevision(ctx context.Context, executionID string) (uint64, error)

	// SetGraphHash updates the execution's graph_hash after a migration.
	SetGraphHash(ctx context.Context, executionID, hash string) error

	// SetArchived sets or clears archived_at.
	SetArchived(ctx context.Context, executionID string, at *time.Time) error

	// TouchUpdatedAt bumps updated_at without touching revision — used by
	// RegenerateScheduleRecurring so ScheduleNodes picks the execution up.
	TouchUpdatedAt(ctx context.Context, executionID string) error

	// InsertSweepRun records the start of a sweep.
	InsertSweepRun(ctx context.Context, run *domain.SweepRun) error

	// CompleteSweepRun closes a previously inserted SweepRun.
	CompleteSweepRun(ctx context.Context, id string, completedAt time.Time, processed int) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the top-level persistence handle.
type Store interface {
	// Begin opens a new transaction.
	Begin(ctx context.Context) (Tx, error)

	// LoadExecution reads an execution (and its values/computations per
	// opts) without taking a row lock — used by read paths that only
	// need a snapshot.
	LoadExecution(ctx context.Context, id string, opts LoadOptions) (*domain.Execution, error)

	// CreateExecution inserts a new execution row plus one "not set"
	// value row per declared node (and a "not_set" computation row for
	// every derived node), inside its own transaction.
	CreateExecution(ctx context.Context, ex *domain.Execution, nodes map[string]domain.NodeType) (*domain.Execution, error)

	// Value reads a single value row.
	Value(ctx context.Context, executionID, nodeName string) (*domain.ValueRow, error)

	// MostRecentComputation returns the most recent computation row for
	// (executionID, nodeName) in any of states (or any state if empty).
	MostRecentComputation(ctx context.Context, executionID, nodeName string, states ...domain.ComputationState) (*domain.Computation, error)

	// TerminalAttemptsSinceLastSuccess counts failed+abandoned rows for a
	// node since its last success (or ever, if it has never succeeded) —
	// the count the Retry Policy bounds against max_retries.
	TerminalAttemptsSinceLastSuccess(ctx context.Context, executionID, nodeName string) (int, error)

	// --- Sweep preflight / batch queries. Each returns at most limit
	// rows; sweeps pass a limit of 100, and only the abandoned and
	// regenerate sweeps page past the first batch. ---

	OverdueComputing(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Computation, error)
	ExecutionsWithPendingScheduleSince(ctx context.Context, since time.Time, limit int) ([]string, error)
	ExecutionsWithDueSchedule(ctx context.Context, dueBefore, updatedSince time.Time, limit int) ([]string, error)
	RecurringSchedulesNeedingSuccessor(ctx context.Context, now time.Time, limit int) ([]*domain.Computation, error)
	ExecutionsUpdatedBetween(ctx context.Context, after, before time.Time, limit int) ([]string, error)
	ExecutionsWithPastSchedule(ctx context.Context, lookbackSince, olderThan time.Time, limit int) ([]string, error)

	// LastCompletedSweep returns the most recently completed run of
	// sweepType, or nil if none has ever completed — the watermark for
	// the next run's cutoff.
	LastCompletedSweep(ctx context.Context, sweepType domain.SweepType) (*domain.SweepRun, error)

	// ExecutionGraphKey returns the graph name, version and hash this
	// execution was created with; migration compares the hash against a
	// live catalog.GraphDefinition to decide whether to reconcile.
	ExecutionGraphKey(ctx context.Context, executionID string) (name, version, hash string, err error)

	// Heartbeat records worker liveness for a still-running computation.
	// It is a lightweight out-of-band write (not part of the revision
	// bookkeeping), so it does not need a Tx.
	Heartbeat(ctx context.Context, computationID string, at, deadline time.Time) error
}

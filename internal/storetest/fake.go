// Package storetest is an in-memory store.Store used by unit tests
// across the engine core. store.Store is wide enough (it carries every
// sweep preflight query) that a single shared fake is worth it rather
// than repeating fakes per test file.
//
// It has no place in production: it takes no locks at all, so it is
// correct only under the single-goroutine-at-a-time access tests give
// it.
package storetest

import (
	"context"
	"sort"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
	valuepkg "github.com/ErlanBelekov/journey/internal/value"
)

type Store struct {
	Executions   map[string]*domain.Execution
	GraphKeys    map[string][3]string // executionID -> {name, version, hash}
	SweepRuns    map[string]*domain.SweepRun
	Heartbeats   map[string]struct{ At, Deadline time.Time }
	LastComplete map[domain.SweepType]*domain.SweepRun

	idSeq int
}

func New() *Store {
	return &Store{
		Executions:   make(map[string]*domain.Execution),
		GraphKeys:    make(map[string][3]string),
		SweepRuns:    make(map[string]*domain.SweepRun),
		Heartbeats:   make(map[string]struct{ At, Deadline time.Time }),
		LastComplete: make(map[domain.SweepType]*domain.SweepRun),
	}
}

func (s *Store) nextID(prefix string) string {
	s.idSeq++
	return prefix
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	return &tx{s: s}, nil
}

func (s *Store) LoadExecution(ctx context.Context, id string, opts store.LoadOptions) (*domain.Execution, error) {
	ex, ok := s.Executions[id]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	return filterLoad(clone(ex), opts), nil
}

func (s *Store) CreateExecution(ctx context.Context, ex *domain.Execution, nodes map[string]domain.NodeType) (*domain.Execution, error) {
	now := time.Now().UTC()
	ex.InsertedAt = now
	ex.UpdatedAt = now

	names := make([]string, 0, len(nodes))
	for n := range nodes {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		typ := nodes[n]
		ex.Values = append(ex.Values, &domain.ValueRow{
			ID:          n + "-val",
			ExecutionID: ex.ID,
			NodeName:    n,
			NodeType:    typ,
			InsertedAt:  now,
			UpdatedAt:   now,
		})
		if !typ.IsInput() {
			ex.Computations = append(ex.Computations, &domain.Computation{
				ID:              n + "-comp-1",
				ExecutionID:     ex.ID,
				NodeName:        n,
				ComputationType: typ,
				State:           domain.StateNotSet,
				InsertedAt:      now,
				UpdatedAt:       now,
			})
		}
	}

	s.Executions[ex.ID] = ex
	s.GraphKeys[ex.ID] = [3]string{ex.GraphName, ex.GraphVersion, ex.GraphHash}
	return clone(ex), nil
}

func (s *Store) Value(ctx context.Context, executionID, nodeName string) (*domain.ValueRow, error) {
	ex, ok := s.Executions[executionID]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	row := ex.Value(nodeName)
	if row == nil {
		return nil, domain.ErrNodeNotFound
	}
	return cloneValueRow(row), nil
}

func (s *Store) MostRecentComputation(ctx context.Context, executionID, nodeName string, states ...domain.ComputationState) (*domain.Computation, error) {
	ex, ok := s.Executions[executionID]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	var latest *domain.Computation
	for _, c := range ex.Computations {
		if c.NodeName != nodeName {
			continue
		}
		if len(states) > 0 && !containsState(states, c.State) {
			continue
		}
		if latest == nil || c.InsertedAt.After(latest.InsertedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) TerminalAttemptsSinceLastSuccess(ctx context.Context, executionID, nodeName string) (int, error) {
	ex, ok := s.Executions[executionID]
	if !ok {
		return 0, domain.ErrExecutionNotFound
	}
	rows := make([]*domain.Computation, 0)
	for _, c := range ex.Computations {
		if c.NodeName == nodeName {
			rows = append(rows, c)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].InsertedAt.Before(rows[j].InsertedAt) })

	count := 0
	for _, c := range rows {
		switch c.State {
		case domain.StateSuccess:
			count = 0
		case domain.StateFailed, domain.StateAbandoned:
			count++
		}
	}
	return count, nil
}

func (s *Store) OverdueComputing(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Computation, error) {
	var out []*domain.Computation
	for _, ex := range s.Executions {
		for _, c := range ex.Computations {
			if c.State == domain.StateComputing && c.IsOverdue(cutoff) {
				out = append(out, c)
			}
		}
	}
	return limitComps(out, limit), nil
}

// ExecutionsWithPendingScheduleSince mirrors the postgres store's query
// over computations joined to executions (internal/infrastructure/postgres/store.go):
// not_set schedule-kind computations on non-archived executions touched
// since the sweep's overlap window opened.
func (s *Store) ExecutionsWithPendingScheduleSince(ctx context.Context, since time.Time, limit int) ([]string, error) {
	ids := make([]string, 0)
	for _, ex := range s.sortedExecutions() {
		if ex.IsArchived() || ex.UpdatedAt.Before(since) {
			continue
		}
		for _, c := range ex.Computations {
			if c.State == domain.StateNotSet && c.ComputationType.IsSchedule() {
				ids = append(ids, ex.ID)
				break
			}
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// ExecutionsWithDueSchedule mirrors the postgres store's value_rows join:
// schedule-kind values that are set, whose epoch-second value is at or
// before dueBefore, on executions touched at or after updatedSince.
func (s *Store) ExecutionsWithDueSchedule(ctx context.Context, dueBefore, updatedSince time.Time, limit int) ([]string, error) {
	ids := make([]string, 0)
	for _, ex := range s.sortedExecutions() {
		if ex.IsArchived() || ex.UpdatedAt.Before(updatedSince) {
			continue
		}
		for _, v := range ex.Values {
			if !v.NodeType.IsSchedule() || !v.IsSet() {
				continue
			}
			if v.NodeValue.Kind() == valuepkg.KindInt && v.NodeValue.IntValue() <= dueBefore.Unix() {
				ids = append(ids, ex.ID)
				break
			}
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// RecurringSchedulesNeedingSuccessor mirrors the postgres store's
// NOT EXISTS anti-join: successful recurring-schedule computations on
// non-archived executions with no later not_set/computing row for the
// same node.
func (s *Store) RecurringSchedulesNeedingSuccessor(ctx context.Context, now time.Time, limit int) ([]*domain.Computation, error) {
	out := make([]*domain.Computation, 0)
	for _, ex := range s.sortedExecutions() {
		if ex.IsArchived() {
			continue
		}
		for _, c := range ex.Computations {
			if !c.ComputationType.IsRecurringSchedule() || c.State != domain.StateSuccess {
				continue
			}
			v := ex.Value(c.NodeName)
			if !v.IsSet() || v.NodeValue.IntValue() > now.Unix() {
				continue // not yet fired; nothing to regenerate
			}
			if hasLaterPendingSuccessor(ex.Computations, c) {
				continue
			}
			cp := *c
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return limitComps(out, limit), nil
}

// ExecutionsUpdatedBetween mirrors the postgres store's plain range scan
// over non-archived executions.
func (s *Store) ExecutionsUpdatedBetween(ctx context.Context, after, before time.Time, limit int) ([]string, error) {
	ids := make([]string, 0)
	for _, ex := range s.sortedExecutions() {
		if ex.IsArchived() {
			continue
		}
		if ex.UpdatedAt.After(after) && !ex.UpdatedAt.After(before) {
			ids = append(ids, ex.ID)
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// ExecutionsWithPastSchedule mirrors the postgres store's value_rows join
// used by the system-downtime catch-all: schedule values set within the
// lookback window on executions not touched since olderThan.
func (s *Store) ExecutionsWithPastSchedule(ctx context.Context, lookbackSince, olderThan time.Time, limit int) ([]string, error) {
	ids := make([]string, 0)
	for _, ex := range s.sortedExecutions() {
		if ex.IsArchived() || !ex.UpdatedAt.Before(olderThan) {
			continue
		}
		for _, v := range ex.Values {
			if !v.NodeType.IsSchedule() || !v.IsSet() {
				continue
			}
			if !v.SetTime.Before(lookbackSince) {
				ids = append(ids, ex.ID)
				break
			}
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// hasLaterPendingSuccessor reports whether some computation row for the
// same node as c, inserted after c, is still not_set or computing.
func hasLaterPendingSuccessor(comps []*domain.Computation, c *domain.Computation) bool {
	for _, other := range comps {
		if other.NodeName != c.NodeName || other.ExecutionID != c.ExecutionID {
			continue
		}
		if !other.State.IsPending() {
			continue
		}
		if other.InsertedAt.After(c.InsertedAt) {
			return true
		}
	}
	return false
}

// sortedExecutions returns executions in a deterministic order (by id) so
// fake query results don't depend on Go's randomized map iteration.
func (s *Store) sortedExecutions() []*domain.Execution {
	ids := make([]string, 0, len(s.Executions))
	for id := range s.Executions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*domain.Execution, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Executions[id])
	}
	return out
}

func (s *Store) LastCompletedSweep(ctx context.Context, sweepType domain.SweepType) (*domain.SweepRun, error) {
	return s.LastComplete[sweepType], nil
}

func (s *Store) ExecutionGraphKey(ctx context.Context, executionID string) (name, version, hash string, err error) {
	k, ok := s.GraphKeys[executionID]
	if !ok {
		return "", "", "", domain.ErrExecutionNotFound
	}
	return k[0], k[1], k[2], nil
}

func (s *Store) Heartbeat(ctx context.Context, computationID string, at, deadline time.Time) error {
	s.Heartbeats[computationID] = struct{ At, Deadline time.Time }{at, deadline}
	for _, ex := range s.Executions {
		for _, c := range ex.Computations {
			if c.ID == computationID {
				c.LastHeartbeatAt = &at
				c.HeartbeatDeadline = &deadline
			}
		}
	}
	return nil
}

// tx is the uncommitted view a transaction mutates; for the fake, writes
// land directly on the shared maps (no isolation) and Commit/Rollback are
// bookkeeping only. Good enough for tests that run one transaction at a
// time, which is all this fake promises to support.
type tx struct {
	s       *Store
	locked  *domain.Execution
	done    bool
}

func (t *tx) LockExecution(ctx context.Context, id string, opts store.LoadOptions) (*domain.Execution, error) {
	ex, ok := t.s.Executions[id]
	if !ok {
		return nil, domain.ErrExecutionNotFound
	}
	t.locked = ex
	return filterLoad(clone(ex), opts), nil
}

func (t *tx) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

func (t *tx) UpsertValue(ctx context.Context, row *domain.ValueRow) error {
	ex, ok := t.s.Executions[row.ExecutionID]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	for i, v := range ex.Values {
		if v.NodeName == row.NodeName {
			cp := *row
			ex.Values[i] = &cp
			return nil
		}
	}
	cp := *row
	ex.Values = append(ex.Values, &cp)
	return nil
}

func (t *tx) InsertComputation(ctx context.Context, c *domain.Computation) error {
	ex, ok := t.s.Executions[c.ExecutionID]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	if c.ID == "" {
		c.ID = t.s.nextID("cp") + "_" + c.NodeName
	}
	cp := *c
	ex.Computations = append(ex.Computations, &cp)
	return nil
}

func (t *tx) UpdateComputation(ctx context.Context, c *domain.Computation) error {
	ex, ok := t.s.Executions[c.ExecutionID]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	for i, existing := range ex.Computations {
		if existing.ID == c.ID {
			cp := *c
			ex.Computations[i] = &cp
			return nil
		}
	}
	return domain.ErrNodeNotFound
}

func (t *tx) BumpRevision(ctx context.Context, executionID string) (uint64, error) {
	ex, ok := t.s.Executions[executionID]
	if !ok {
		return 0, domain.ErrExecutionNotFound
	}
	ex.Revision++
	return ex.Revision, nil
}

func (t *tx) SetGraphHash(ctx context.Context, executionID, hash string) error {
	ex, ok := t.s.Executions[executionID]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	ex.GraphHash = hash
	k := t.s.GraphKeys[executionID]
	k[2] = hash
	t.s.GraphKeys[executionID] = k
	return nil
}

func (t *tx) SetArchived(ctx context.Context, executionID string, at *time.Time) error {
	ex, ok := t.s.Executions[executionID]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	ex.ArchivedAt = at
	return nil
}

func (t *tx) TouchUpdatedAt(ctx context.Context, executionID string) error {
	ex, ok := t.s.Executions[executionID]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	ex.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *tx) InsertSweepRun(ctx context.Context, run *domain.SweepRun) error {
	if run.ID == "" {
		run.ID = t.s.nextID("sw")
	}
	cp := *run
	t.s.SweepRuns[run.ID] = &cp
	return nil
}

func (t *tx) CompleteSweepRun(ctx context.Context, id string, completedAt time.Time, processed int) error {
	run, ok := t.s.SweepRuns[id]
	if !ok {
		return domain.ErrNodeNotFound
	}
	run.CompletedAt = &completedAt
	run.ExecutionsProcessed = &processed
	t.s.LastComplete[run.SweepType] = run
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	t.done = true
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	return nil
}

func clone(ex *domain.Execution) *domain.Execution {
	cp := *ex
	cp.Values = append([]*domain.ValueRow(nil), ex.Values...)
	cp.Computations = append([]*domain.Computation(nil), ex.Computations...)
	return &cp
}

func cloneValueRow(row *domain.ValueRow) *domain.ValueRow {
	cp := *row
	return &cp
}

func filterLoad(ex *domain.Execution, opts store.LoadOptions) *domain.Execution {
	if len(opts.ComputationStates) == 0 {
		return ex
	}
	filtered := ex.Computations[:0:0]
	for _, c := range ex.Computations {
		if containsState(opts.ComputationStates, c.State) {
			filtered = append(filtered, c)
		}
	}
	ex.Computations = filtered
	return ex
}

func containsState(states []domain.ComputationState, s domain.ComputationState) bool {
	for _, want := range states {
		if want == s {
			return true
		}
	}
	return false
}

func limitComps(in []*domain.Computation, limit int) []*domain.Computation {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

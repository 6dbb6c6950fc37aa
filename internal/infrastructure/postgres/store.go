// Package postgres is the relational implementation of internal/store:
// hand-written SQL over jackc/pgx/v5, row locking with FOR UPDATE, and
// pgconn.PgError inspection for constraint violations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/ErlanBelekov/journey/internal/value"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

const executionColumns = `id, graph_name, graph_version, graph_hash, revision, archived_at, inserted_at, updated_at`
const valueColumns = `id, execution_id, node_name, node_type, node_value, set_time, ex_revision, metadata, inserted_at, updated_at`
const computationColumns = `id, execution_id, node_name, computation_type, state, ex_revision_at_start, ex_revision_at_completion, scheduled_time, start_time, completion_time, deadline, error_details, computed_with, last_heartbeat_at, heartbeat_deadline, inserted_at, updated_at`

func (s *Store) LoadExecution(ctx context.Context, id string, opts store.LoadOptions) (*domain.Execution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	ex, err := scanExecution(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("load execution: %w", err)
	}

	values, err := loadValues(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	ex.Values = values

	comps, err := loadComputations(ctx, s.pool, id, opts.ComputationStates)
	if err != nil {
		return nil, err
	}
	ex.Computations = comps
	return ex, nil
}

// pgxQuerier is the read subset both *pgxpool.Pool and pgx.Tx satisfy, so
// loadValues/loadComputations work whether called from the unlocked
// Store path or from inside a Tx that already holds the row lock.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadValues(ctx context.Context, q pgxQuerier, executionID string) ([]*domain.ValueRow, error) {
	rows, err := q.Query(ctx, `SELECT `+valueColumns+` FROM value_rows WHERE execution_id = $1 ORDER BY node_name`, executionID)
	if err != nil {
		return nil, fmt.Errorf("load values: %w", err)
	}
	defer rows.Close()

	var out []*domain.ValueRow
	for rows.Next() {
		v, err := scanValueRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func loadComputations(ctx context.Context, q pgxQuerier, executionID string, states []domain.ComputationState) ([]*domain.Computation, error) {
	sql := `SELECT ` + computationColumns + ` FROM computations WHERE execution_id = $1`
	args := []any{executionID}
	if len(states) > 0 {
		sql += ` AND state = ANY($2)`
		args = append(args, statesToStrings(states))
	}
	sql += ` ORDER BY node_name, inserted_at DESC`

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("load computations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Computation
	for rows.Next() {
		c, err := scanComputation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan computation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func statesToStrings(states []domain.ComputationState) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}

func (s *Store) CreateExecution(ctx context.Context, ex *domain.Execution, nodes map[string]domain.NodeType) (*domain.Execution, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := ex.InsertedAt
	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, graph_name, graph_version, graph_hash, revision, inserted_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)`,
		ex.ID, ex.GraphName, ex.GraphVersion, ex.GraphHash, now)
	if err != nil {
		return nil, fmt.Errorf("insert execution: %w", err)
	}

	for name, nt := range nodes {
		vID := store.NewValueID()
		nullVal, _ := value.Null().MarshalJSON()
		emptyMeta, _ := value.Map(nil).MarshalJSON()
		_, err = tx.Exec(ctx, `
			INSERT INTO value_rows (id, execution_id, node_name, node_type, node_value, set_time, ex_revision, metadata, inserted_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NULL, NULL, $6, $7, $7)`,
			vID, ex.ID, name, string(nt), nullVal, emptyMeta, now)
		if err != nil {
			return nil, fmt.Errorf("insert value row %s: %w", name, err)
		}

		if !nt.IsInput() {
			cID := store.NewComputationID()
			emptyComputedWith, _ := json.Marshal(map[string]uint64{})
			_, err = tx.Exec(ctx, `
				INSERT INTO computations (id, execution_id, node_name, computation_type, state, computed_with, error_details, inserted_at, updated_at)
				VALUES ($1, $2, $3, $4, 'not_set', $5, '', $6, $6)`,
				cID, ex.ID, name, string(nt), emptyComputedWith, now)
			if err != nil {
				return nil, fmt.Errorf("insert computation row %s: %w", name, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.LoadExecution(ctx, ex.ID, store.LoadOptions{})
}

func (s *Store) Value(ctx context.Context, executionID, nodeName string) (*domain.ValueRow, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+valueColumns+` FROM value_rows WHERE execution_id = $1 AND node_name = $2`, executionID, nodeName)
	v, err := scanValueRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNodeNotFound
		}
		return nil, fmt.Errorf("load value: %w", err)
	}
	return v, nil
}

func (s *Store) MostRecentComputation(ctx context.Context, executionID, nodeName string, states ...domain.ComputationState) (*domain.Computation, error) {
	sql := `SELECT ` + computationColumns + ` FROM computations WHERE execution_id = $1 AND node_name = $2`
	args := []any{executionID, nodeName}
	if len(states) > 0 {
		sql += ` AND state = ANY($3)`
		args = append(args, statesToStrings(states))
	}
	sql += ` ORDER BY inserted_at DESC LIMIT 1`

	row := s.pool.QueryRow(ctx, sql, args...)
	c, err := scanComputation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load computation: %w", err)
	}
	return c, nil
}

func (s *Store) TerminalAttemptsSinceLastSuccess(ctx context.Context, executionID, nodeName string) (int, error) {
	const sql = `
		SELECT count(*) FROM computations
		WHERE execution_id = $1 AND node_name = $2
		  AND state IN ('failed', 'abandoned')
		  AND inserted_at > COALESCE((
			SELECT max(inserted_at) FROM computations
			WHERE execution_id = $1 AND node_name = $2 AND state = 'success'
		  ), 'epoch'::timestamptz)`
	var n int
	if err := s.pool.QueryRow(ctx, sql, executionID, nodeName).Scan(&n); err != nil {
		return 0, fmt.Errorf("count terminal attempts: %w", err)
	}
	return n, nil
}

func (s *Store) OverdueComputing(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Computation, error) {
	const sql = `
		SELECT ` + computationColumns + ` FROM computations
		WHERE state = 'computing'
		  AND (deadline IS NOT NULL AND deadline < $1 OR heartbeat_deadline IS NOT NULL AND heartbeat_deadline < $1)
		ORDER BY deadline NULLS LAST
		LIMIT $2`
	rows, err := s.pool.Query(ctx, sql, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("overdue computing: %w", err)
	}
	defer rows.Close()

	var out []*domain.Computation
	for rows.Next() {
		c, err := scanComputation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ExecutionsWithPendingScheduleSince(ctx context.Context, since time.Time, limit int) ([]string, error) {
	const sql = `
		SELECT DISTINCT c.execution_id FROM computations c
		JOIN executions e ON e.id = c.execution_id
		WHERE c.computation_type IN ('schedule_once', 'schedule_recurring', 'tick_once', 'tick_recurring')
		  AND c.state = 'not_set'
		  AND e.archived_at IS NULL
		  AND e.updated_at >= $1
		LIMIT $2`
	return s.stringColumn(ctx, sql, since, limit)
}

func (s *Store) ExecutionsWithDueSchedule(ctx context.Context, dueBefore, updatedSince time.Time, limit int) ([]string, error) {
	const sql = `
		SELECT DISTINCT v.execution_id FROM value_rows v
		JOIN executions e ON e.id = v.execution_id
		WHERE v.node_type IN ('schedule_once', 'schedule_recurring', 'tick_once', 'tick_recurring')
		  AND v.set_time IS NOT NULL
		  AND e.archived_at IS NULL
		  AND e.updated_at >= $2
		  AND (v.node_value)::text::bigint <= extract(epoch FROM $1)::bigint
		LIMIT $3`
	return s.stringColumn(ctx, sql, dueBefore, updatedSince, limit)
}

func (s *Store) stringColumn(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) RecurringSchedulesNeedingSuccessor(ctx context.Context, now time.Time, limit int) ([]*domain.Computation, error) {
	const sql = `
		SELECT ` + computationColumns + ` FROM computations c
		JOIN executions e ON e.id = c.execution_id
		JOIN value_rows v ON v.execution_id = c.execution_id AND v.node_name = c.node_name
		WHERE c.computation_type IN ('schedule_recurring', 'tick_recurring')
		  AND c.state = 'success'
		  AND e.archived_at IS NULL
		  AND v.set_time IS NOT NULL
		  AND (v.node_value)::text::bigint <= extract(epoch FROM $1)::bigint
		  AND NOT EXISTS (
			SELECT 1 FROM computations c2
			WHERE c2.execution_id = c.execution_id AND c2.node_name = c.node_name
			  AND c2.state IN ('not_set', 'computing')
			  AND c2.inserted_at > c.inserted_at
		  )
		ORDER BY c.completion_time
		LIMIT $2`
	rows, err := s.pool.Query(ctx, sql, now, limit)
	if err != nil {
		return nil, fmt.Errorf("recurring needing successor: %w", err)
	}
	defer rows.Close()
	var out []*domain.Computation
	for rows.Next() {
		c, err := scanComputation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ExecutionsUpdatedBetween(ctx context.Context, after, before time.Time, limit int) ([]string, error) {
	const sql = `
		SELECT id FROM executions
		WHERE archived_at IS NULL AND updated_at > $1 AND updated_at <= $2
		ORDER BY updated_at
		LIMIT $3`
	return s.stringColumn(ctx, sql, after, before, limit)
}

func (s *Store) ExecutionsWithPastSchedule(ctx context.Context, lookbackSince, olderThan time.Time, limit int) ([]string, error) {
	const sql = `
		SELECT DISTINCT v.execution_id FROM value_rows v
		JOIN executions e ON e.id = v.execution_id
		WHERE v.node_type IN ('schedule_once', 'schedule_recurring', 'tick_once', 'tick_recurring')
		  AND v.set_time IS NOT NULL
		  AND v.set_time >= $1
		  AND e.archived_at IS NULL
		  AND e.updated_at < $2
		LIMIT $3`
	return s.stringColumn(ctx, sql, lookbackSince, olderThan, limit)
}

func (s *Store) LastCompletedSweep(ctx context.Context, sweepType domain.SweepType) (*domain.SweepRun, error) {
	const sql = `
		SELECT id, sweep_type, started_at, completed_at, executions_processed, inserted_at, updated_at
		FROM sweep_runs WHERE sweep_type = $1 AND completed_at IS NOT NULL
		ORDER BY completed_at DESC LIMIT 1`
	row := s.pool.QueryRow(ctx, sql, string(sweepType))
	var run domain.SweepRun
	var st string
	if err := row.Scan(&run.ID, &st, &run.StartedAt, &run.CompletedAt, &run.ExecutionsProcessed, &run.InsertedAt, &run.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("last completed sweep: %w", err)
	}
	run.SweepType = domain.SweepType(st)
	return &run, nil
}

func (s *Store) Heartbeat(ctx context.Context, computationID string, at, deadline time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE computations SET last_heartbeat_at = $2, heartbeat_deadline = $3, updated_at = $2
		WHERE id = $1 AND state = 'computing'`, computationID, at, deadline)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (s *Store) ExecutionGraphKey(ctx context.Context, executionID string) (name, version, hash string, err error) {
	row := s.pool.QueryRow(ctx, `SELECT graph_name, graph_version, graph_hash FROM executions WHERE id = $1`, executionID)
	if err := row.Scan(&name, &version, &hash); err != nil {
		if err == pgx.ErrNoRows {
			return "", "", "", domain.ErrExecutionNotFound
		}
		return "", "", "", fmt.Errorf("execution graph key: %w", err)
	}
	return name, version, hash, nil
}

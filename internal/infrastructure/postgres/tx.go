package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
)

// Tx wraps a pgx.Tx. A single execution's row lock, once taken by
// LockExecution, is held for the life of the transaction — every other
// write in this file assumes that lock is already held by the caller:
// all writes to a single execution's state happen inside one serialized
// transaction.
type Tx struct {
	tx pgx.Tx
}

var _ store.Tx = (*Tx)(nil)

func (t *Tx) LockExecution(ctx context.Context, id string, opts store.LoadOptions) (*domain.Execution, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1 FOR UPDATE`, id)
	ex, err := scanExecution(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("lock execution: %w", err)
	}

	values, err := loadValues(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	ex.Values = values

	comps, err := loadComputations(ctx, t.tx, id, opts.ComputationStates)
	if err != nil {
		return nil, err
	}
	ex.Computations = comps
	return ex, nil
}

func (t *Tx) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	if err := t.tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, key).Scan(&ok); err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	return ok, nil
}

func (t *Tx) UpsertValue(ctx context.Context, row *domain.ValueRow) error {
	rawValue, err := encodeValue(row.NodeValue)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	rawMeta, err := encodeValue(row.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO value_rows (id, execution_id, node_name, node_type, node_value, set_time, ex_revision, metadata, inserted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (execution_id, node_name) DO UPDATE SET
			node_value = EXCLUDED.node_value,
			set_time   = EXCLUDED.set_time,
			ex_revision = EXCLUDED.ex_revision,
			metadata   = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		row.ID, row.ExecutionID, row.NodeName, string(row.NodeType), rawValue, row.SetTime, row.ExRevision, rawMeta, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert value: %w", err)
	}
	return nil
}

func (t *Tx) InsertComputation(ctx context.Context, c *domain.Computation) error {
	computedWith, err := json.Marshal(c.ComputedWith)
	if err != nil {
		return fmt.Errorf("encode computed_with: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO computations (`+computationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		c.ID, c.ExecutionID, c.NodeName, string(c.ComputationType), string(c.State),
		c.ExRevisionAtStart, c.ExRevisionAtCompletion,
		c.ScheduledTime, c.StartTime, c.CompletionTime, c.Deadline,
		c.ErrorDetails, computedWith,
		c.LastHeartbeatAt, c.HeartbeatDeadline,
		c.InsertedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert computation: %w", err)
	}
	return nil
}

func (t *Tx) UpdateComputation(ctx context.Context, c *domain.Computation) error {
	computedWith, err := json.Marshal(c.ComputedWith)
	if err != nil {
		return fmt.Errorf("encode computed_with: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		UPDATE computations SET
			state = $2,
			ex_revision_at_start = $3,
			ex_revision_at_completion = $4,
			scheduled_time = $5,
			start_time = $6,
			completion_time = $7,
			deadline = $8,
			error_details = $9,
			computed_with = $10,
			last_heartbeat_at = $11,
			heartbeat_deadline = $12,
			updated_at = $13
		WHERE id = $1`,
		c.ID, string(c.State), c.ExRevisionAtStart, c.ExRevisionAtCompletion,
		c.ScheduledTime, c.StartTime, c.CompletionTime, c.Deadline,
		c.ErrorDetails, computedWith, c.LastHeartbeatAt, c.HeartbeatDeadline, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update computation: %w", err)
	}
	return nil
}

func (t *Tx) BumpRevision(ctx context.Context, executionID string) (uint64, error) {
	var rev uint64
	err := t.tx.QueryRow(ctx, `
		UPDATE executions SET revision = revision + 1, updated_at = now()
		WHERE id = $1
		RETURNING revision`, executionID).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("bump revision: %w", err)
	}
	return rev, nil
}

func (t *Tx) SetGraphHash(ctx context.Context, executionID, hash string) error {
	_, err := t.tx.Exec(ctx, `UPDATE executions SET graph_hash = $2, updated_at = now() WHERE id = $1`, executionID, hash)
	if err != nil {
		return fmt.Errorf("set graph hash: %w", err)
	}
	return nil
}

func (t *Tx) SetArchived(ctx context.Context, executionID string, at *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE executions SET archived_at = $2, updated_at = now() WHERE id = $1`, executionID, at)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	return nil
}

func (t *Tx) TouchUpdatedAt(ctx context.Context, executionID string) error {
	_, err := t.tx.Exec(ctx, `UPDATE executions SET updated_at = now() WHERE id = $1`, executionID)
	if err != nil {
		return fmt.Errorf("touch updated_at: %w", err)
	}
	return nil
}

func (t *Tx) InsertSweepRun(ctx context.Context, run *domain.SweepRun) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sweep_runs (id, sweep_type, started_at, completed_at, executions_processed, inserted_at, updated_at)
		VALUES ($1, $2, $3, NULL, NULL, $3, $3)`,
		run.ID, string(run.SweepType), run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert sweep run: %w", err)
	}
	return nil
}

func (t *Tx) CompleteSweepRun(ctx context.Context, id string, completedAt time.Time, processed int) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE sweep_runs SET completed_at = $2, executions_processed = $3, updated_at = $2
		WHERE id = $1`, id, completedAt, processed)
	if err != nil {
		return fmt.Errorf("complete sweep run: %w", err)
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

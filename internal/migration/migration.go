// Package migration reconciles an execution whose stored graph_hash has
// fallen behind the currently registered graph definition.
package migration

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/ErlanBelekov/journey/internal/value"
)

type Migrator struct {
	store   store.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
}

func NewMigrator(st store.Store, cat *catalog.Catalog, logger *slog.Logger) *Migrator {
	return &Migrator{store: st, catalog: cat, logger: logger.With("component", "migration")}
}

// Reconcile brings executionID's stored rows in line with the graph
// definition currently registered for its (name, version), if the two
// hashes differ. A no-op if they already match — callers may call this
// unconditionally before every advance/read without a separate check.
func (m *Migrator) Reconcile(ctx context.Context, executionID string) error {
	name, version, hash, err := m.store.ExecutionGraphKey(ctx, executionID)
	if err != nil {
		return err
	}

	graph := m.catalog.Get(name, version)
	if graph == nil {
		// Missing graph definition: skip with a log line, no
		// destructive action.
		m.logger.WarnContext(ctx, "graph not registered, skipping migration", "execution_id", executionID, "graph_name", name, "graph_version", version)
		return nil
	}
	if graph.Hash() == hash {
		return nil
	}

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := tx.TryAdvisoryLock(ctx, advisoryKey(executionID))
	if err != nil {
		return err
	}
	if !locked {
		// Another process is migrating (or has just migrated) this
		// execution; nothing to do here.
		return nil
	}

	// Re-check under the lock: the hash we compared against may already
	// be stale by the time we acquired it.
	_, _, hash, err = m.store.ExecutionGraphKey(ctx, executionID)
	if err != nil {
		return err
	}
	if graph.Hash() == hash {
		return nil
	}

	ex, err := tx.LockExecution(ctx, executionID, store.LoadOptions{})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	added := 0
	for _, nodeName := range graph.NodeNames() {
		if ex.Value(nodeName) != nil {
			continue // already has a value row
		}
		node := graph.Nodes[nodeName]

		row := &domain.ValueRow{
			ID:          store.NewValueID(),
			ExecutionID: ex.ID,
			NodeName:    nodeName,
			NodeType:    node.Type,
			NodeValue:   value.Null(),
			SetTime:     nil,
			ExRevision:  zeroRevision(),
			Metadata:    value.Map(nil),
			InsertedAt:  now,
			UpdatedAt:   now,
		}
		if err := tx.UpsertValue(ctx, row); err != nil {
			return err
		}

		if node.Type != domain.NodeInput {
			comp := &domain.Computation{
				ID:              store.NewComputationID(),
				ExecutionID:     ex.ID,
				NodeName:        nodeName,
				ComputationType: node.Type,
				State:           domain.StateNotSet,
				InsertedAt:      now,
				UpdatedAt:       now,
			}
			if err := tx.InsertComputation(ctx, comp); err != nil {
				return err
			}
		}
		added++
	}

	if err := tx.SetGraphHash(ctx, ex.ID, graph.Hash()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "migrated execution", "execution_id", executionID, "graph_name", name, "graph_version", version, "nodes_added", added)
	return nil
}

func zeroRevision() *uint64 {
	var z uint64
	return &z
}

// advisoryKey derives a stable int64 lock key from an execution id, the
// same fnv-hashing approach internal/sweep uses for its per-sweep-type
// keys, scoped here to "one advisory lock per execution during
// migration".
func advisoryKey(executionID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("migration:" + executionID))
	return int64(h.Sum64())
}

// Package mutation implements the Value Mutation API: the
// only way external callers write input node values.
package mutation

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/kick"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/ErlanBelekov/journey/internal/value"
)

type advancer interface {
	Advance(ctx context.Context, executionID string) error
}

type Mutator struct {
	store    store.Store
	catalog  *catalog.Catalog
	bus      *kick.Bus
	notify   *kick.Notifier
	advancer advancer
	logger   *slog.Logger
}

func NewMutator(st store.Store, cat *catalog.Catalog, bus *kick.Bus, notify *kick.Notifier, adv advancer, logger *slog.Logger) *Mutator {
	return &Mutator{store: st, catalog: cat, bus: bus, notify: notify, advancer: adv, logger: logger.With("component", "mutation")}
}

// Set writes a single input node's value.
func (m *Mutator) Set(ctx context.Context, executionID, nodeName string, v, metadata value.Value) error {
	return m.SetMany(ctx, executionID, map[string]value.Value{nodeName: v}, metadata)
}

// Unset clears a single input node back to "not set".
func (m *Mutator) Unset(ctx context.Context, executionID, nodeName string) error {
	return m.UnsetMany(ctx, executionID, []string{nodeName})
}

// SetMany writes several input nodes atomically: every changed value
// shares the same new revision.
func (m *Mutator) SetMany(ctx context.Context, executionID string, values map[string]value.Value, metadata value.Value) error {
	return m.apply(ctx, executionID, values, metadata, false)
}

// UnsetMany clears several input nodes atomically.
func (m *Mutator) UnsetMany(ctx context.Context, executionID string, nodes []string) error {
	values := make(map[string]value.Value, len(nodes))
	for _, n := range nodes {
		values[n] = value.Null()
	}
	return m.apply(ctx, executionID, values, value.Map(nil), true)
}

func (m *Mutator) apply(ctx context.Context, executionID string, values map[string]value.Value, metadata value.Value, unset bool) error {
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ex, err := tx.LockExecution(ctx, executionID, store.LoadOptions{})
	if err != nil {
		return err
	}
	if ex.IsArchived() {
		return domain.ErrExecutionArchived
	}

	graph := m.catalog.Get(ex.GraphName, ex.GraphVersion)
	if graph == nil {
		return domain.ErrGraphNotRegistered
	}

	now := time.Now().UTC()
	var rev uint64
	bumped := false

	for name, v := range values {
		node, ok := graph.Nodes[name]
		if !ok {
			return domain.ErrNodeNotFound
		}
		if node.Type != domain.NodeInput {
			return domain.ErrNotInputNode
		}

		cur := ex.Value(name)
		if cur == nil {
			return domain.ErrNodeNotFound
		}

		wantSetTime := !unset
		alreadyMatches := cur.IsSet() == wantSetTime && value.Equal(cur.NodeValue, v) && value.Equal(cur.Metadata, metadata)
		if alreadyMatches {
			continue // skip unchanged writes: no revision bump, no advance
		}

		if !bumped {
			rev, err = tx.BumpRevision(ctx, ex.ID)
			if err != nil {
				return err
			}
			bumped = true
		}

		cur.NodeValue = v
		cur.Metadata = metadata
		cur.ExRevision = &rev
		cur.UpdatedAt = now
		if unset {
			cur.SetTime = nil
		} else {
			cur.SetTime = &now
		}
		if err := tx.UpsertValue(ctx, cur); err != nil {
			return err
		}
	}

	if !bumped {
		return nil // nothing changed
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	m.notify.Notify(ex.ID)
	if !m.bus.Kick(ex.ID) {
		m.logger.WarnContext(ctx, "kick queue full, advancing synchronously", "execution_id", ex.ID)
		if err := m.advancer.Advance(ctx, ex.ID); err != nil {
			m.logger.ErrorContext(ctx, "synchronous advance failed", "execution_id", ex.ID, "error", err)
		}
	}
	return nil
}

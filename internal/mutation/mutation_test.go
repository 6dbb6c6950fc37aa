package mutation_test

import (
	"context"
	"testing"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/kick"
	"github.com/ErlanBelekov/journey/internal/mutation"
	"github.com/ErlanBelekov/journey/internal/storetest"
	"github.com/ErlanBelekov/journey/internal/value"
)

type fakeAdvancer struct {
	calls []string
	err   error
}

func (a *fakeAdvancer) Advance(ctx context.Context, executionID string) error {
	a.calls = append(a.calls, executionID)
	return a.err
}

func newFixture(t *testing.T) (*mutation.Mutator, *storetest.Store, *kick.Bus, *fakeAdvancer, string) {
	t.Helper()

	cat := catalog.New()
	graph := &catalog.GraphDefinition{
		Name:    "greeting",
		Version: "v1",
		Nodes: map[string]catalog.NodeDefinition{
			"name": {Name: "name", Type: domain.NodeInput},
			"greeting": {
				Name: "greeting",
				Type: domain.NodeCompute,
			},
		},
	}
	if err := cat.Register(graph); err != nil {
		t.Fatalf("register graph: %v", err)
	}

	st := storetest.New()
	_, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID:           "ex-1",
		GraphName:    "greeting",
		GraphVersion: "v1",
		GraphHash:    graph.Hash(),
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	bus := kick.NewBus(4)
	notify := kick.NewNotifier()
	adv := &fakeAdvancer{}
	logger := testLogger()

	m := mutation.NewMutator(st, cat, bus, notify, adv, logger)
	return m, st, bus, adv, "ex-1"
}

func TestSet_FirstWrite_BumpsRevisionAndKicks(t *testing.T) {
	m, st, bus, _, exID := newFixture(t)

	if err := m.Set(context.Background(), exID, "name", value.String("Ada"), value.Map(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	row, err := st.Value(context.Background(), exID, "name")
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if !row.IsSet() {
		t.Fatal("expected the value to be set")
	}
	if row.NodeValue.StringValue() != "Ada" {
		t.Errorf("value = %q, want Ada", row.NodeValue.StringValue())
	}
	if row.ExRevision == nil || *row.ExRevision != 1 {
		t.Errorf("expected revision 1, got %v", row.ExRevision)
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()
	if id, ok := bus.Next(ctx); !ok || id != exID {
		t.Fatalf("expected a kick for %s, got %q, %v", exID, id, ok)
	}
}

func TestSet_UnchangedWrite_SkipsRevisionBumpAndKick(t *testing.T) {
	m, st, bus, _, exID := newFixture(t)

	if err := m.Set(context.Background(), exID, "name", value.String("Ada"), value.Map(nil)); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	ctx, cancel := contextWithTimeout()
	bus.Next(ctx) // drain the first kick
	cancel()

	if err := m.Set(context.Background(), exID, "name", value.String("Ada"), value.Map(nil)); err != nil {
		t.Fatalf("second Set: %v", err)
	}

	row, _ := st.Value(context.Background(), exID, "name")
	if *row.ExRevision != 1 {
		t.Errorf("expected revision to stay at 1 for an unchanged write, got %d", *row.ExRevision)
	}

	shortCtx, cancel2 := contextWithShortTimeout()
	defer cancel2()
	if _, ok := bus.Next(shortCtx); ok {
		t.Fatal("did not expect a second kick for an unchanged write")
	}
}

func TestUnset_ClearsSetTime(t *testing.T) {
	m, st, _, _, exID := newFixture(t)

	if err := m.Set(context.Background(), exID, "name", value.String("Ada"), value.Map(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Unset(context.Background(), exID, "name"); err != nil {
		t.Fatalf("Unset: %v", err)
	}

	row, _ := st.Value(context.Background(), exID, "name")
	if row.IsSet() {
		t.Fatal("expected the value to be unset")
	}
}

func TestSetMany_UnknownNode_ReturnsErrNodeNotFound(t *testing.T) {
	m, _, _, _, exID := newFixture(t)

	err := m.Set(context.Background(), exID, "does-not-exist", value.Int(1), value.Map(nil))
	if err != domain.ErrNodeNotFound {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestSetMany_DerivedNode_ReturnsErrNotInputNode(t *testing.T) {
	m, _, _, _, exID := newFixture(t)

	err := m.Set(context.Background(), exID, "greeting", value.String("hi"), value.Map(nil))
	if err != domain.ErrNotInputNode {
		t.Errorf("err = %v, want ErrNotInputNode", err)
	}
}

func TestApply_ArchivedExecution_ReturnsErrExecutionArchived(t *testing.T) {
	m, st, _, _, exID := newFixture(t)

	ex := st.Executions[exID]
	now := time.Now().UTC()
	ex.ArchivedAt = &now

	err := m.Set(context.Background(), exID, "name", value.String("Ada"), value.Map(nil))
	if err != domain.ErrExecutionArchived {
		t.Errorf("err = %v, want ErrExecutionArchived", err)
	}
}

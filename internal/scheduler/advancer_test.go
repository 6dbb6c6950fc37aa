package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/condition"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/scheduler"
	"github.com/ErlanBelekov/journey/internal/storetest"
	"github.com/ErlanBelekov/journey/internal/value"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func greetingGraph() *catalog.GraphDefinition {
	return &catalog.GraphDefinition{
		Name:    "greeting",
		Version: "v1",
		Nodes: map[string]catalog.NodeDefinition{
			"name": {Name: "name", Type: domain.NodeInput},
			"greeting": {
				Name: "greeting",
				Type: domain.NodeCompute,
				Gate: condition.FromNodeList("name"),
			},
		},
	}
}

func TestAdvance_GateUnmet_DoesNotStartComputation(t *testing.T) {
	cat := catalog.New()
	graph := greetingGraph()
	if err := cat.Register(graph); err != nil {
		t.Fatalf("register: %v", err)
	}

	st := storetest.New()
	_, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID: "ex-1", GraphName: "greeting", GraphVersion: "v1", GraphHash: graph.Hash(),
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	var dispatched []string
	dispatch := func(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition) {
		dispatched = append(dispatched, comp.NodeName)
	}
	adv := scheduler.NewAdvancer(st, cat, dispatch, discardLogger())

	if err := adv.Advance(context.Background(), "ex-1"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(dispatched) != 0 {
		t.Errorf("expected no dispatch while name is unset, got %v", dispatched)
	}

	comp := findComp(st, "ex-1", "greeting")
	if comp.State != domain.StateNotSet {
		t.Errorf("state = %v, want not_set", comp.State)
	}
}

func TestAdvance_GateMet_StartsAndDispatchesComputation(t *testing.T) {
	cat := catalog.New()
	graph := greetingGraph()
	if err := cat.Register(graph); err != nil {
		t.Fatalf("register: %v", err)
	}

	st := storetest.New()
	_, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID: "ex-1", GraphName: "greeting", GraphVersion: "v1", GraphHash: graph.Hash(),
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	setValue(st, "ex-1", "name", value.String("Ada"), 1)

	var dispatched []string
	dispatch := func(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition) {
		dispatched = append(dispatched, comp.NodeName)
	}
	adv := scheduler.NewAdvancer(st, cat, dispatch, discardLogger())

	if err := adv.Advance(context.Background(), "ex-1"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(dispatched) != 1 || dispatched[0] != "greeting" {
		t.Fatalf("dispatched = %v, want [greeting]", dispatched)
	}

	comp := findComp(st, "ex-1", "greeting")
	if comp.State != domain.StateComputing {
		t.Errorf("state = %v, want computing", comp.State)
	}
	if comp.ComputedWith["name"] != 1 {
		t.Errorf("computed_with[name] = %d, want 1 (snapshot of the revision at dispatch)", comp.ComputedWith["name"])
	}
}

func TestAdvance_AlreadyComputing_IsIdempotentAndDoesNotRedispatch(t *testing.T) {
	cat := catalog.New()
	graph := greetingGraph()
	if err := cat.Register(graph); err != nil {
		t.Fatalf("register: %v", err)
	}

	st := storetest.New()
	_, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID: "ex-1", GraphName: "greeting", GraphVersion: "v1", GraphHash: graph.Hash(),
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	setValue(st, "ex-1", "name", value.String("Ada"), 1)

	dispatchCount := 0
	dispatch := func(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition) {
		dispatchCount++
	}
	adv := scheduler.NewAdvancer(st, cat, dispatch, discardLogger())

	if err := adv.Advance(context.Background(), "ex-1"); err != nil {
		t.Fatalf("first Advance: %v", err)
	}
	if err := adv.Advance(context.Background(), "ex-1"); err != nil {
		t.Fatalf("second Advance: %v", err)
	}

	if dispatchCount != 1 {
		t.Errorf("dispatch called %d times, want exactly 1 (at-most-one-pending invariant)", dispatchCount)
	}
}

func TestAdvance_AfterSuccess_DoesNotRecomputeUntilInputChanges(t *testing.T) {
	cat := catalog.New()
	graph := greetingGraph()
	if err := cat.Register(graph); err != nil {
		t.Fatalf("register: %v", err)
	}

	st := storetest.New()
	_, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID: "ex-1", GraphName: "greeting", GraphVersion: "v1", GraphHash: graph.Hash(),
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	setValue(st, "ex-1", "name", value.String("Ada"), 1)

	// Simulate a completed run: greeting succeeded at revision 2, no
	// pending row remains.
	comp := findComp(st, "ex-1", "greeting")
	now := nowUTC()
	comp.State = domain.StateSuccess
	comp.CompletionTime = &now
	setValue(st, "ex-1", "greeting", value.String("Hello, Ada"), 2)

	dispatched := 0
	dispatch := func(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition) {
		dispatched++
	}
	adv := scheduler.NewAdvancer(st, cat, dispatch, discardLogger())

	if err := adv.Advance(context.Background(), "ex-1"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if dispatched != 0 {
		t.Fatalf("expected no recompute while inputs are unchanged, got %d dispatches", dispatched)
	}

	// The input moves to a newer revision: the node is stale and a fresh
	// computation starts.
	setValue(st, "ex-1", "name", value.String("Grace"), 3)
	if err := adv.Advance(context.Background(), "ex-1"); err != nil {
		t.Fatalf("Advance after input change: %v", err)
	}
	if dispatched != 1 {
		t.Errorf("expected exactly one recompute after the input changed, got %d", dispatched)
	}
}

func TestAdvance_RetriesExhausted_InputChangeDoesNotAutoRetry(t *testing.T) {
	cat := catalog.New()
	graph := greetingGraph()
	if err := cat.Register(graph); err != nil {
		t.Fatalf("register: %v", err)
	}

	st := storetest.New()
	_, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID: "ex-1", GraphName: "greeting", GraphVersion: "v1", GraphHash: graph.Hash(),
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	setValue(st, "ex-1", "name", value.String("Ada"), 1)

	// Terminal failure with no successor: greeting never produced a value.
	comp := findComp(st, "ex-1", "greeting")
	now := nowUTC()
	comp.State = domain.StateFailed
	comp.CompletionTime = &now

	dispatched := 0
	dispatch := func(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition) {
		dispatched++
	}
	adv := scheduler.NewAdvancer(st, cat, dispatch, discardLogger())

	setValue(st, "ex-1", "name", value.String("Grace"), 2)
	if err := adv.Advance(context.Background(), "ex-1"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if dispatched != 0 {
		t.Errorf("expected a terminally failed node to stay failed on input change, got %d dispatches", dispatched)
	}
}

func TestAdvance_ArchivedExecution_SkipsEntirely(t *testing.T) {
	cat := catalog.New()
	graph := greetingGraph()
	if err := cat.Register(graph); err != nil {
		t.Fatalf("register: %v", err)
	}

	st := storetest.New()
	_, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID: "ex-1", GraphName: "greeting", GraphVersion: "v1", GraphHash: graph.Hash(),
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	setValue(st, "ex-1", "name", value.String("Ada"), 1)
	now := nowUTC()
	st.Executions["ex-1"].ArchivedAt = &now

	dispatched := 0
	dispatch := func(ctx context.Context, ex *domain.Execution, comp *domain.Computation, node catalog.NodeDefinition) {
		dispatched++
	}
	adv := scheduler.NewAdvancer(st, cat, dispatch, discardLogger())

	if err := adv.Advance(context.Background(), "ex-1"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if dispatched != 0 {
		t.Errorf("expected an archived execution to never dispatch, got %d", dispatched)
	}
}

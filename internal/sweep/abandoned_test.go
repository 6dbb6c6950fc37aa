package sweep_test

import (
	"context"
	"testing"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/storetest"
	"github.com/ErlanBelekov/journey/internal/sweep"
)

type fakeAdvancer struct{ calls []string }

func (a *fakeAdvancer) Advance(ctx context.Context, executionID string) error {
	a.calls = append(a.calls, executionID)
	return nil
}

func TestAbandonedComputations_PastDeadline_MarksAbandonedAndAdvances(t *testing.T) {
	cat := catalog.New()
	graph := &catalog.GraphDefinition{
		Name:    "greeting",
		Version: "v1",
		Nodes: map[string]catalog.NodeDefinition{
			"name":     {Name: "name", Type: domain.NodeInput},
			"greeting": {Name: "greeting", Type: domain.NodeCompute, Retry: catalog.RetryConfig{MaxRetries: 2, BackoffMS: []int64{100}}},
		},
	}
	if err := cat.Register(graph); err != nil {
		t.Fatalf("register: %v", err)
	}

	st := storetest.New()
	_, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID: "ex-1", GraphName: "greeting", GraphVersion: "v1",
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	comp := findComp(st, "ex-1", "greeting")
	past := time.Now().UTC().Add(-time.Hour)
	comp.State = domain.StateComputing
	comp.Deadline = &past

	adv := &fakeAdvancer{}
	s := sweep.NewAbandonedComputations(st, cat, adv, discardLogger())

	processed, err := s.Work(context.Background())
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}

	finished := findComp(st, "ex-1", "greeting")
	if finished.State != domain.StateAbandoned {
		t.Errorf("state = %v, want abandoned", finished.State)
	}

	if len(adv.calls) != 1 || adv.calls[0] != "ex-1" {
		t.Errorf("expected Advance to be called once for ex-1, got %v", adv.calls)
	}

	var successor *domain.Computation
	for _, c := range st.Executions["ex-1"].Computations {
		if c.NodeName == "greeting" && c.State == domain.StateNotSet {
			successor = c
		}
	}
	if successor == nil {
		t.Error("expected a not_set retry successor after abandonment")
	}
}

func TestAbandonedComputations_NothingOverdue_ProcessesNothing(t *testing.T) {
	cat := catalog.New()
	st := storetest.New()
	adv := &fakeAdvancer{}
	s := sweep.NewAbandonedComputations(st, cat, adv, discardLogger())

	processed, err := s.Work(context.Background())
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
}

func findComp(st *storetest.Store, exID, node string) *domain.Computation {
	ex := st.Executions[exID]
	for _, c := range ex.Computations {
		if c.NodeName == node {
			return c
		}
	}
	return nil
}

// seed-demo creates a handful of executions of two of the built-in demo
// graphs (greeting and heartbeat) against the local dev database, the way cmd/seed seeded jobs
// for the job-queue this codebase started life as.
// Run: go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/graphs"
	"github.com/ErlanBelekov/journey/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/journey/internal/kick"
	"github.com/ErlanBelekov/journey/internal/mutation"
	"github.com/ErlanBelekov/journey/internal/notify"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/ErlanBelekov/journey/internal/value"
)

// noopAdvancer satisfies mutation's advancer interface for seeding:
// cmd/engine, if it's running, drains the kick bus and advances these
// executions on its own; if it isn't, the next sweep cycle will.
type noopAdvancer struct{}

func (noopAdvancer) Advance(ctx context.Context, executionID string) error { return nil }

var greetingNames = []string{"Ada", "Grace", "Alan", "Margaret", "Katherine"}

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)
	cat := catalog.New()
	graphs.RegisterAll(cat, notify.NewLogSender(logger))

	bus := kick.NewBus(32)
	notifier := kick.NewNotifier()
	mutator := mutation.NewMutator(st, cat, bus, notifier, noopAdvancer{}, logger)

	greeting := cat.Get("greeting", "v1")
	heartbeat := cat.Get("heartbeat", "v1")

	nodeTypes := func(g *catalog.GraphDefinition) map[string]domain.NodeType {
		m := make(map[string]domain.NodeType, len(g.Nodes))
		for name, n := range g.Nodes {
			m[name] = n.Type
		}
		return m
	}

	var executionIDs []string

	for _, name := range greetingNames {
		now := time.Now().UTC()
		ex := &domain.Execution{
			ID:           store.NewExecutionID(),
			GraphName:    greeting.Name,
			GraphVersion: greeting.Version,
			GraphHash:    greeting.Hash(),
			InsertedAt:   now,
			UpdatedAt:    now,
		}
		created, err := st.CreateExecution(ctx, ex, nodeTypes(greeting))
		if err != nil {
			log.Fatalf("create greeting execution: %v", err)
		}
		if err := mutator.Set(ctx, created.ID, "name", value.String(name), value.Null()); err != nil {
			log.Fatalf("set name=%s: %v", name, err)
		}
		executionIDs = append(executionIDs, created.ID)
	}

	now := time.Now().UTC()
	hb := &domain.Execution{
		ID:           store.NewExecutionID(),
		GraphName:    heartbeat.Name,
		GraphVersion: heartbeat.Version,
		GraphHash:    heartbeat.Hash(),
		InsertedAt:   now,
		UpdatedAt:    now,
	}
	createdHB, err := st.CreateExecution(ctx, hb, nodeTypes(heartbeat))
	if err != nil {
		log.Fatalf("create heartbeat execution: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Greeting executions: %d\n", len(executionIDs))
	for _, id := range executionIDs {
		fmt.Printf("    %s\n", id)
	}
	fmt.Printf("  Heartbeat execution: %s (self-schedules every minute, no input needed)\n", createdHB.ID)
	fmt.Println()
	fmt.Println("How to test (with cmd/server running and JWT from cmd/issue-token):")
	fmt.Println()
	fmt.Println("  export JWT=$(go run ./cmd/issue-token -subject demo)")
	id := "EXECUTION_ID"
	if len(executionIDs) > 0 {
		id = executionIDs[0]
	}
	fmt.Printf("  curl -s http://localhost:8080/executions/%s/values/greeting?wait=any \\\n", id)
	fmt.Println("    -H \"Authorization: Bearer $JWT\"")
}

// Package graphs registers the graph definitions this deployment ships
// out of the box. A real deployment would likely load definitions from
// a plugin or config source instead; these worked examples give a fresh
// environment something runnable.
package graphs

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/condition"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/nodefn"
	"github.com/ErlanBelekov/journey/internal/notify"
	"github.com/ErlanBelekov/journey/internal/schedulefn"
	"github.com/ErlanBelekov/journey/internal/value"
)

// RegisterAll registers every built-in graph definition. Call once at
// process startup, before the catalog is read from. sender delivers the
// onboarding graph's f_on_save notifications.
func RegisterAll(cat *catalog.Catalog, sender notify.Sender) {
	must(cat.Register(greetingGraph()))
	must(cat.Register(heartbeatGraph()))
	must(cat.Register(onboardingGraph(sender)))
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("graphs: invalid built-in graph definition: %v", err))
	}
}

// greetingGraph is a minimal compute chain: input(name),
// compute(greeting, [name]).
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
				Fn: func(_ context.Context, inputs map[string]value.Value) domain.Outcome {
					name := inputs["name"].StringValue()
					return domain.Ok(value.String("Hello, " + name))
				},
				Retry: catalog.RetryConfig{MaxRetries: 2, BackoffMS: []int64{100, 500}},
			},
		},
	}
}

// heartbeatGraph is a recurring-schedule chain: schedule_recurring(tick),
// compute(beat, gated on tick's fire time).
func heartbeatGraph() *catalog.GraphDefinition {
	tickFn, err := schedulefn.Recurring("* * * * *")
	must(err)

	return &catalog.GraphDefinition{
		Name:    "heartbeat",
		Version: "v1",
		Nodes: map[string]catalog.NodeDefinition{
			"tick": {
				Name: "tick",
				Type: domain.NodeScheduleRecurring,
				Fn:   tickFn,
			},
			"beat": {
				Name: "beat",
				Type: domain.NodeCompute,
				Gate: condition.DueNode("tick"),
				Fn: func(_ context.Context, inputs map[string]value.Value) domain.Outcome {
					return domain.Ok(value.Int(inputs["tick"].IntValue()))
				},
				Retry: catalog.RetryConfig{MaxRetries: 3, BackoffMS: []int64{1000}},
			},
		},
	}
}

// onboardingGraph exercises the rest of the node-type surface: a welcome
// message with an f_on_save notification, webhook delivery of it to a
// per-execution URL, a history of email changes, and time-based PII
// clearing followed by archival.
func onboardingGraph(sender notify.Sender) *catalog.GraphDefinition {
	webhook := nodefn.HTTP(nodefn.HTTPConfig{
		Method:   "POST",
		URLNode:  "webhook_url",
		BodyNode: "welcome",
		Headers:  map[string]string{"Content-Type": "text/plain"},
	})

	return &catalog.GraphDefinition{
		Name:    "onboarding",
		Version: "v1",
		Nodes: map[string]catalog.NodeDefinition{
			"email":       {Name: "email", Type: domain.NodeInput},
			"webhook_url": {Name: "webhook_url", Type: domain.NodeInput},
			"welcome": {
				Name: "welcome",
				Type: domain.NodeCompute,
				Gate: condition.FromNodeList("email"),
				Fn: func(_ context.Context, inputs map[string]value.Value) domain.Outcome {
					return domain.Ok(value.String("Welcome aboard, " + inputs["email"].StringValue()))
				},
				OnSave: func(ctx context.Context, _ string, v value.Value) error {
					return sender.Send(ctx, "ops@example.com", "welcome computed", v.StringValue())
				},
				Retry: catalog.RetryConfig{MaxRetries: 2, BackoffMS: []int64{100, 500}},
			},
			"welcome_delivery": {
				Name: "welcome_delivery",
				Type: domain.NodeCompute,
				Gate: condition.FromNodeList("welcome", "webhook_url"),
				Fn:   webhook,
				Retry: catalog.RetryConfig{
					MaxRetries:          5,
					BackoffMS:           []int64{1000, 5000, 30000, 60000},
					AbandonAfterSeconds: 300,
				},
			},
			"email_history": {
				Name:       "email_history",
				Type:       domain.NodeHistorian,
				Gate:       condition.FromNodeList("email"),
				MaxEntries: 10,
				Fn: func(_ context.Context, inputs map[string]value.Value) domain.Outcome {
					return domain.Ok(inputs["email"])
				},
			},
			"purge_at": {
				Name: "purge_at",
				Type: domain.NodeScheduleOnce,
				Gate: condition.FromNodeList("email"),
				Fn: func(_ context.Context, _ map[string]value.Value) domain.Outcome {
					return domain.Ok(value.Int(time.Now().Add(30 * 24 * time.Hour).Unix()))
				},
			},
			"redact_email": {
				Name:    "redact_email",
				Type:    domain.NodeMutate,
				Mutates: "email",
				Gate: condition.And{Children: []condition.Cond{
					condition.FromNodeList("email"),
					condition.DueNode("purge_at"),
				}},
				Fn: func(_ context.Context, _ map[string]value.Value) domain.Outcome {
					return domain.Ok(value.String("[redacted]"))
				},
			},
			"finished": {
				Name: "finished",
				Type: domain.NodeArchive,
				Gate: condition.And{Children: []condition.Cond{
					condition.FromNodeList("welcome_delivery"),
					condition.DueNode("purge_at"),
				}},
				Fn: func(_ context.Context, _ map[string]value.Value) domain.Outcome {
					return domain.Ok(value.Bool(true))
				},
			},
		},
	}
}

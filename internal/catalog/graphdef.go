package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/ErlanBelekov/journey/internal/condition"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/value"
)

// NodeFn is the closure the Worker invokes for a derived node. inputs is
// the upstream value snapshot taken at dispatch time. Any
// panic raised by a NodeFn is converted by the worker into
// domain.Errored — node authors do not need to recover their own panics.
type NodeFn func(ctx context.Context, inputs map[string]value.Value) domain.Outcome

// RetryConfig is a derived node's retry/timeout configuration.
type RetryConfig struct {
	MaxRetries          int
	BackoffMS           []int64
	AbandonAfterSeconds int64
	HeartbeatInterval   int64 // seconds; 0 disables heartbeats
	HeartbeatTimeout    int64 // seconds
}

// BackoffFor returns the backoff delay (ms) for the given number of prior
// attempts, clamped to the last configured element.
func (r RetryConfig) BackoffFor(attempts int) int64 {
	if len(r.BackoffMS) == 0 {
		return 0
	}
	if attempts >= len(r.BackoffMS) {
		return r.BackoffMS[len(r.BackoffMS)-1]
	}
	if attempts < 0 {
		attempts = 0
	}
	return r.BackoffMS[attempts]
}

// NodeDefinition is one node's declaration within a graph.
type NodeDefinition struct {
	Name       string
	Type       domain.NodeType
	Gate       condition.Cond // nil for input nodes
	Fn         NodeFn         // nil for input nodes
	Mutates    string         // non-empty only for NodeMutate: target node name
	MaxEntries int            // historian nodes only
	Retry      RetryConfig
	OnSave     func(ctx context.Context, nodeName string, v value.Value) error // best-effort, outside tx
}

// GraphDefinition is the full declaration of a dataflow graph, identified
// by (Name, Version) and content-hashed so executions can detect drift.
type GraphDefinition struct {
	Name    string
	Version string
	Nodes   map[string]NodeDefinition
}

// NodeNames returns every declared node name, sorted, for deterministic
// iteration (e.g. when seeding a new execution's value rows).
func (g *GraphDefinition) NodeNames() []string {
	out := make([]string, 0, len(g.Nodes))
	for n := range g.Nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Hash content-hashes the graph's shape: node names, types, mutation
// targets, and gate leaf references. Closures aren't hashed (they aren't
// comparable); graph authors are expected to bump Version when a node
// function's behavior changes even if its declared shape doesn't.
func (g *GraphDefinition) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s@%s\n", g.Name, g.Version)
	for _, name := range g.NodeNames() {
		n := g.Nodes[name]
		fmt.Fprintf(h, "node=%s type=%s mutates=%s max_entries=%d\n", n.Name, n.Type, n.Mutates, n.MaxEntries)
		if n.Gate != nil {
			fmt.Fprintf(h, "  gate=%s\n", condition.Fingerprint(n.Gate))
		}
		fmt.Fprintf(h, "  retry=%d backoff=%v abandon=%d heartbeat=%d/%d\n",
			n.Retry.MaxRetries, n.Retry.BackoffMS, n.Retry.AbandonAfterSeconds,
			n.Retry.HeartbeatInterval, n.Retry.HeartbeatTimeout)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Validate rejects graphs whose gate conditions reference unknown nodes
// and whose mutate nodes target unknown nodes, so a bad reference never
// reaches a running execution.
func (g *GraphDefinition) Validate() error {
	for name, n := range g.Nodes {
		if n.Type == domain.NodeMutate {
			if n.Mutates == "" {
				return fmt.Errorf("catalog: node %q is a mutate node with no target", name)
			}
			if _, ok := g.Nodes[n.Mutates]; !ok {
				return fmt.Errorf("catalog: node %q mutates unknown node %q", name, n.Mutates)
			}
		}
		if n.Gate != nil {
			for _, dep := range condition.Nodes(n.Gate) {
				if _, ok := g.Nodes[dep]; !ok {
					return fmt.Errorf("catalog: node %q gate references unknown node %q", name, dep)
				}
			}
		}
	}
	return nil
}

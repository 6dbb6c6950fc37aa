// Package kick implements the in-process signaling the scheduler relies
// on between mutation/worker completion and the advancer: a bounded, coalescing,
// latest-wins queue keyed by execution id, plus a revision-bump notifier
// for get's wait modes. The database remains the source of truth; these
// are optimizations a crash can always lose without breaking
// correctness — sweeps exist precisely to recover from that.
package kick

import (
	"context"
	"sync"

	"github.com/ErlanBelekov/journey/internal/metrics"
)

// Bus is a bounded, coalescing queue of execution ids awaiting an
// advance. Calling Kick for an id already queued is a no-op: advance is
// idempotent, so a second kick buys nothing once the first is pending.
type Bus struct {
	mu      sync.Mutex
	pending map[string]struct{}
	queue   chan string
}

func NewBus(capacity int) *Bus {
	return &Bus{
		pending: make(map[string]struct{}),
		queue:   make(chan string, capacity),
	}
}

// Kick enqueues executionID for an advance. It reports false if the
// queue is full and the id was not already pending — the caller is
// expected to fall back to a synchronous advance in that case.
func (b *Bus) Kick(executionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[executionID]; ok {
		metrics.KicksTotal.WithLabelValues("coalesced").Inc()
		return true
	}
	select {
	case b.queue <- executionID:
		b.pending[executionID] = struct{}{}
		metrics.KicksTotal.WithLabelValues("queued").Inc()
		return true
	default:
		metrics.KicksTotal.WithLabelValues("overflow_sync").Inc()
		return false
	}
}

// Next blocks until an execution id is available or ctx is done.
func (b *Bus) Next(ctx context.Context) (string, bool) {
	select {
	case id := <-b.queue:
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return id, true
	case <-ctx.Done():
		return "", false
	}
}

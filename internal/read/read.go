// Package read implements the Read API with Waiting.
package read

import (
	"context"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/kick"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/ErlanBelekov/journey/internal/value"
)

// WaitMode selects how Get behaves when the node isn't yet in a
// returnable state.
type WaitMode int

const (
	WaitImmediate WaitMode = iota // single snapshot read (default)
	WaitAny                       // block until set
	WaitNewer                     // block until revision exceeds Request.Baseline
	WaitNewerThan                 // block until revision exceeds Request.Baseline (explicit R form)
)

// Infinite, passed as Request.Timeout, disables the deadline entirely.
const Infinite time.Duration = -1

// Request parameterizes one Get call.
type Request struct {
	ExecutionID string
	NodeName    string
	Wait        WaitMode
	// Baseline is the revision the caller already observed. Required for
	// WaitNewer/WaitNewerThan; nil means "caller supplied only an id, no
	// baseline exists" and is a validation error for those modes.
	Baseline *uint64
	// Timeout is the max wait duration, or Infinite. Ignored for
	// WaitImmediate.
	Timeout time.Duration
}

func (r Request) Validate() error {
	if (r.Wait == WaitNewer || r.Wait == WaitNewerThan) && r.Baseline == nil {
		return domain.ErrBaselineRequired
	}
	if r.Wait != WaitImmediate && r.Timeout != Infinite && r.Timeout <= 0 {
		return domain.ErrInvalidTimeout
	}
	return nil
}

// Result is a successful Get outcome.
type Result struct {
	Value    value.Value
	Revision uint64
}

// Reader implements Get. Waiters wake on a per-execution broadcast from
// the notifier, and additionally poll on a cap as a belt-and-braces
// against a missed notification.
type Reader struct {
	store        store.Store
	notify       *kick.Notifier
	pollInterval time.Duration
}

func NewReader(st store.Store, notify *kick.Notifier, pollInterval time.Duration) *Reader {
	return &Reader{store: st, notify: notify, pollInterval: pollInterval}
}

// Get resolves req against current (or eventually current) state.
func (r *Reader) Get(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	if req.Wait == WaitImmediate {
		return r.outcome(ctx, req)
	}

	var timeoutCh <-chan time.Time
	if req.Timeout != Infinite {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	sub, unsubscribe := r.notify.Subscribe(req.ExecutionID)
	defer unsubscribe()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		res, err := r.outcome(ctx, req)
		if !isPending(err, req) {
			return res, err
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timeoutCh:
			return Result{}, domain.ErrWaitTimeout
		case <-sub:
		case <-ticker.C:
		}
	}
}

// isPending reports whether err represents "not ready yet, keep
// waiting" for req's wait mode, as opposed to a terminal outcome
// (success, or computation_failed, which waiters never wait past).
func isPending(err error, req Request) bool {
	if err == nil {
		return false
	}
	if err == domain.ErrComputationFailed {
		return false
	}
	return err == domain.ErrValueNotSet
}

func (r *Reader) outcome(ctx context.Context, req Request) (Result, error) {
	row, err := r.store.Value(ctx, req.ExecutionID, req.NodeName)
	if err != nil {
		return Result{}, err
	}

	if row.IsSet() {
		var rev uint64
		if row.ExRevision != nil {
			rev = *row.ExRevision
		}
		if (req.Wait == WaitNewer || req.Wait == WaitNewerThan) && rev <= *req.Baseline {
			return Result{}, domain.ErrValueNotSet // not yet newer than baseline: keep waiting
		}
		return Result{Value: row.NodeValue, Revision: rev}, nil
	}

	comp, cerr := r.store.MostRecentComputation(ctx, req.ExecutionID, req.NodeName)
	if cerr == nil && comp != nil && (comp.State == domain.StateFailed || comp.State == domain.StateAbandoned) {
		return Result{}, domain.ErrComputationFailed
	}
	return Result{}, domain.ErrValueNotSet
}

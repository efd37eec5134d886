// Package approval implements the single-outstanding async rendezvous a
// Pipeline uses to wait on a human reviewer reachable through a chat
// bridge. It is a channel-based future rather than a blocking prompt, so
// the goroutine waiting on a decision never blocks the process — only its
// own Pipeline.
package approval

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Oracle hands out at most one outstanding approval rendezvous at a time.
// A new Ask supersedes any prior unresolved one, resolving it to false.
type Oracle struct {
	mu      sync.Mutex
	pending *request

	// Bridge delivers the approval prompt to a human and is expected to
	// call Resolve once a decision arrives. Nil means no bridge is
	// configured, in which case Ask resolves immediately to true.
	Bridge Bridge
}

// Bridge renders an approval prompt to a human reviewer. Implementations
// live in internal/chatbridge.
type Bridge interface {
	RequestApproval(ctx context.Context, stage, task string) error
}

type request struct {
	result chan bool
	once   sync.Once
}

func (r *request) resolve(v bool) {
	r.once.Do(func() {
		r.result <- v
		close(r.result)
	})
}

// New creates an Oracle. A nil bridge means every Ask resolves to true.
func New(bridge Bridge) *Oracle {
	return &Oracle{Bridge: bridge}
}

// Ask renders stage/task to the bridge and suspends until a decision
// arrives, the oracle is superseded by a new Ask, or ctx is cancelled.
// RALPH_AUTO_APPROVE=true bypasses the bridge entirely, mirroring the
// teacher's VC_AUTO_APPROVE escape hatch.
func (o *Oracle) Ask(ctx context.Context, stage, task string) (bool, error) {
	if os.Getenv("RALPH_AUTO_APPROVE") == "true" {
		return true, nil
	}
	if o.Bridge == nil {
		return true, nil
	}

	req := &request{result: make(chan bool, 1)}

	o.mu.Lock()
	prior := o.pending
	o.pending = req
	o.mu.Unlock()

	if prior != nil {
		prior.resolve(false)
	}

	if err := o.Bridge.RequestApproval(ctx, stage, task); err != nil {
		o.clearIfCurrent(req)
		return false, fmt.Errorf("requesting approval: %w", err)
	}

	select {
	case v := <-req.result:
		return v, nil
	case <-ctx.Done():
		o.clearIfCurrent(req)
		req.resolve(false)
		return false, ctx.Err()
	}
}

// Resolve delivers a human decision for the current outstanding request, if
// any. Resolving when nothing is pending is a no-op.
func (o *Oracle) Resolve(decision bool) {
	o.mu.Lock()
	req := o.pending
	o.pending = nil
	o.mu.Unlock()

	if req != nil {
		req.resolve(decision)
	}
}

// Stop resolves any pending approval to false, freeing the waiting
// goroutine when a pipeline stops while a human decision is in flight.
func (o *Oracle) Stop() {
	o.Resolve(false)
}

func (o *Oracle) clearIfCurrent(req *request) {
	o.mu.Lock()
	if o.pending == req {
		o.pending = nil
	}
	o.mu.Unlock()
}

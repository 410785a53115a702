package agent

import (
	"context"
	"sync"
)

// approvalGate is a one-shot, single-consumer rendezvous between the
// orchestrator and the external approval channel. The orchestrator arms the
// gate before suspending; Approve or Reject resolves exactly one outstanding
// suspension. Resolving an unarmed gate is a no-op. A stop latches: arming a
// stopped gate yields an immediate rejection, so a stop landing while no
// suspension is outstanding is never lost.
type approvalGate struct {
	mu      sync.Mutex
	waiter  chan bool
	stopped bool
}

// arm prepares the gate for one decision and returns the channel the
// orchestrator waits on. On a stopped gate the decision is already rejected.
func (g *approvalGate) arm() <-chan bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan bool, 1)
	if g.stopped {
		ch <- false
		return ch
	}
	g.waiter = ch
	return ch
}

// disarm cancels an outstanding arm, e.g. when the waiting context ends.
func (g *approvalGate) disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waiter = nil
}

// resolve delivers a decision to the armed waiter, if any.
func (g *approvalGate) resolve(approved bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.waiter == nil {
		return
	}
	g.waiter <- approved
	g.waiter = nil
}

// stop rejects the outstanding suspension, if any, and latches so the next
// arm resolves as rejected too.
func (g *approvalGate) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	if g.waiter != nil {
		g.waiter <- false
		g.waiter = nil
	}
}

// reset clears the stop latch for a new run.
func (g *approvalGate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = false
	g.waiter = nil
}

// await suspends on an armed channel until a decision arrives or ctx ends.
// Context cancellation counts as rejection.
func (g *approvalGate) await(ctx context.Context, ch <-chan bool) bool {
	select {
	case approved := <-ch:
		return approved
	case <-ctx.Done():
		g.disarm()
		return false
	}
}

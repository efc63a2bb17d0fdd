package graph

import (
	"context"
	"sync"
)

// GateState is one of the three states an ExecutionGate can be in.
type GateState int32

const (
	GateRunning GateState = iota
	GatePaused
	GateStepping
)

// Gate is the pause/step/resume checkpoint the runtime consults exactly
// once before each TriggerAsync dispatch and before each initiator
// dispatch. Wait blocks while the gate is Paused; when Stepping, it lets
// exactly one waiter through and then reverts to Paused, giving a debugger
// single-step semantics without a second call into the gate.
type Gate struct {
	mu       sync.Mutex
	state    GateState
	resumeCh chan struct{}
	metrics  *Metrics
}

// NewGate returns a gate in the Running state.
func NewGate() *Gate {
	return &Gate{state: GateRunning, resumeCh: make(chan struct{})}
}

// Wait blocks if the gate is Paused, returns immediately if Running, and
// for Stepping lets this one call through before reverting to Paused. It
// observes ctx cancellation and returns the context's error immediately if
// the token is tripped while waiting.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	switch g.state {
	case GateRunning:
		g.mu.Unlock()
		return nil
	case GateStepping:
		g.state = GatePaused
		g.metrics.gatePaused()
		g.mu.Unlock()
		return nil
	default: // GatePaused
		ch := g.resumeCh
		g.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run transitions the gate to Running, releasing any waiters.
func (g *Gate) Run() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release()
	g.state = GateRunning
}

// Resume is an alias for Run, matching the spec's vocabulary.
func (g *Gate) Resume() { g.Run() }

// Pause transitions the gate to Paused. Waiters already blocked stay
// blocked; future Wait calls will block too.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GatePaused
	g.metrics.gatePaused()
}

// StepOnce releases any current waiter and arms the gate to let exactly
// one more Wait call through before automatically pausing again.
func (g *Gate) StepOnce() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release()
	g.state = GateStepping
}

// State reports the gate's current state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// release closes and replaces resumeCh if the gate is currently Paused,
// waking any blocked Wait calls. Must be called with mu held.
func (g *Gate) release() {
	if g.state == GatePaused {
		close(g.resumeCh)
		g.resumeCh = make(chan struct{})
	}
}

package events

import (
	"context"
	"sync"
	"time"
)

// Emitter is the single push-oriented sink one request's orchestrator
// writes to. Emit never blocks on a closed emitter — it is a no-op — but
// it does apply ordinary channel back-pressure while open, since ordering
// must be preserved end to end.
type Emitter struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewEmitter creates an emitter with the given buffer depth.
func NewEmitter(buffer int) *Emitter {
	return &Emitter{ch: make(chan Event, buffer)}
}

// Emit pushes one event. No-op once Close has been called.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	ch := e.ch
	e.mu.Unlock()
	ch <- ev
}

// Events returns the channel downstream consumers range over.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close stops accepting further events and closes the channel so the
// downstream consumer's range loop ends.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}

// RunHeartbeat emits a ping on the given interval until ctx is done. The
// caller runs this as a child goroutine of the request's cancellation
// scope.
func (e *Emitter) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Emit(Ping{})
		}
	}
}

package bus

import (
	"context"
	"sync"
)

// EdgeLog is the ordered transition history of one watched line.
// A driver pushes every level change; a waiter consumes them one at a
// time, so the waiter sees the same sequence a fast enough poller would.
type EdgeLog struct {
	mu        sync.Mutex
	observed  bool // level as seen by the waiter
	last      bool // level after every pushed transition
	pending   []bool
	delivered uint64
	consumed  uint64
	changed   chan struct{}
	closed    bool
}

// NewEdgeLog creates a log whose waiter starts out observing level initial
func NewEdgeLog(initial bool) *EdgeLog {
	return &EdgeLog{
		observed: initial,
		last:     initial,
		changed:  make(chan struct{}),
	}
}

// broadcast wakes every goroutine blocked on the log.
// Must be called with lock held
func (e *EdgeLog) broadcast() {
	close(e.changed)
	e.changed = make(chan struct{})
}

// Push records a transition to level high. It returns the sequence number of
// the transition, or 0 when the level did not change.
func (e *EdgeLog) Push(high bool) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || high == e.last {
		return 0
	}
	e.last = high
	e.pending = append(e.pending, high)
	e.delivered++
	e.broadcast()
	return e.delivered
}

// Wait blocks until the waiter observes level high, consuming at most the
// transitions needed to get there
func (e *EdgeLog) Wait(ctx context.Context, high bool) error {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return ErrClosed
		}

		consumed := false
		for e.observed != high && len(e.pending) > 0 {
			e.observed = e.pending[0]
			e.pending = e.pending[1:]
			e.consumed++
			consumed = true
		}
		if consumed {
			e.broadcast()
		}
		if e.observed == high {
			e.mu.Unlock()
			return nil
		}

		ch := e.changed
		e.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitConsumed blocks until the transition with sequence number seq has
// been consumed by the waiter
func (e *EdgeLog) WaitConsumed(ctx context.Context, seq uint64) error {
	for {
		e.mu.Lock()
		if e.consumed >= seq {
			e.mu.Unlock()
			return nil
		}
		if e.closed {
			e.mu.Unlock()
			return ErrClosed
		}
		ch := e.changed
		e.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Observed returns the level the waiter last observed
func (e *EdgeLog) Observed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observed
}

// Pending returns the number of transitions not yet consumed
func (e *EdgeLog) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Resync discards pending transitions: the waiter observes the latest level
// and every queued transition counts as consumed
func (e *EdgeLog) Resync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observed = e.last
	e.pending = nil
	e.consumed = e.delivered
	e.broadcast()
}

// Close releases every waiter with ErrClosed
func (e *EdgeLog) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.broadcast()
}

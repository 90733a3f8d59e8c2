// Package sim joins a body port and a lens port on one in-memory wire.
//
// The wire enforces single-driver ownership of the data line and delivers
// every handshake and clock transition to the peer in order. Clock edges are
// delivered synchronously: the body's Set(Clock) returns only after the lens
// has consumed the edge, which makes bit sampling deterministic without any
// real-time delays.
package sim

import (
	"context"
	"sync"

	"lensbus/bus"
)

// Side names one end of the wire
type Side uint8

const (
	Body Side = iota
	Lens
)

func (s Side) String() string {
	if s == Lens {
		return "lens"
	}
	return "body"
}

func (s Side) peer() Side {
	return 1 - s
}

// owned lists the lines each side may drive
var owned = [2][]bus.Line{
	Body: {bus.Clock, bus.Data, bus.BodyAck, bus.Power, bus.Focus, bus.Shutter},
	Lens: {bus.Data, bus.LensAck},
}

// watched lists the peer lines whose transitions each side consumes in order
var watched = [2][]bus.Line{
	Body: {bus.LensAck},
	Lens: {bus.Clock, bus.BodyAck, bus.Power},
}

// Wire is the shared medium. The zero value is not usable; call NewWire.
type Wire struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	level   [bus.NumLines]bool
	driver  [bus.NumLines]*Port
	edges   [bus.NumLines]int
	ports   [2]*Port
	changed chan struct{}
	closed  bool
}

// NewWire creates a wire with every line at its idle level
func NewWire() *Wire {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Wire{
		ctx:     ctx,
		cancel:  cancel,
		changed: make(chan struct{}),
	}
	for l := bus.Line(0); l < bus.NumLines; l++ {
		w.level[l] = l.Idle()
	}
	return w
}

// Body returns the body port, attaching it on first use
func (w *Wire) Body() *Port {
	return w.attach(Body)
}

// Lens returns the lens port, attaching it on first use. Once attached, every
// body clock edge waits for the lens to consume it.
func (w *Wire) Lens() *Port {
	return w.attach(Lens)
}

func (w *Wire) attach(side Side) *Port {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p := w.ports[side]; p != nil {
		return p
	}
	p := &Port{wire: w, side: side}
	for l := bus.Line(0); l < bus.NumLines; l++ {
		p.out[l] = l.Idle()
	}
	for _, l := range owned[side] {
		p.owns[l] = true
	}
	for _, l := range watched[side] {
		p.logs[l] = bus.NewEdgeLog(w.level[l])
	}
	if side == Lens {
		p.sync[bus.Clock] = true
	}
	w.ports[side] = p
	return p
}

// Level returns the current level of a line
func (w *Wire) Level(line bus.Line) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.level[line]
}

// Edges returns the number of transitions seen on a line since the wire was created
func (w *Wire) Edges(line bus.Line) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edges[line]
}

// Driver returns the side currently driving a line, or false if it floats
func (w *Wire) Driver(line bus.Line) (Side, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p := w.driver[line]; p != nil {
		return p.side, true
	}
	return 0, false
}

func (w *Wire) closedNow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close releases every blocked operation on both ports with bus.ErrClosed
func (w *Wire) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.cancel()
	for _, p := range w.ports {
		if p == nil {
			continue
		}
		for _, log := range p.logs {
			if log != nil {
				log.Close()
			}
		}
	}
	w.broadcast()
	w.mu.Unlock()
}

// broadcast wakes goroutines polling unwatched lines.
// Must be called with lock held
func (w *Wire) broadcast() {
	close(w.changed)
	w.changed = make(chan struct{})
}

type syncWait struct {
	log *bus.EdgeLog
	seq uint64
}

// update recomputes the level of a line after a drive change and delivers
// the transition to the peer. Must be called with lock held; the returned
// waits must be honoured after unlocking.
func (w *Wire) update(line bus.Line, from *Port) []syncWait {
	level := line.Idle()
	if d := w.driver[line]; d != nil {
		level = d.out[line]
	}
	if level == w.level[line] {
		return nil
	}
	w.level[line] = level
	w.edges[line]++

	var waits []syncWait
	for _, p := range w.ports {
		if p == nil || p == from {
			continue
		}
		log := p.logs[line]
		if log == nil {
			continue
		}
		if seq := log.Push(level); seq > 0 && p.sync[line] {
			waits = append(waits, syncWait{log: log, seq: seq})
		}
	}
	w.broadcast()
	return waits
}

func (w *Wire) settle(waits []syncWait) error {
	for _, sw := range waits {
		if err := sw.log.WaitConsumed(w.ctx, sw.seq); err != nil {
			return bus.ErrClosed
		}
	}
	return nil
}

package sim

import (
	"context"

	"lensbus/bus"
)

// Port is one side's exclusive view of the wire. It implements bus.Lines.
type Port struct {
	wire *Wire
	side Side
	owns [bus.NumLines]bool
	dir  [bus.NumLines]bus.Direction
	out  [bus.NumLines]bool
	logs [bus.NumLines]*bus.EdgeLog
	sync [bus.NumLines]bool
}

var (
	_ bus.Lines    = (*Port)(nil)
	_ bus.Resyncer = (*Port)(nil)
)

// Side reports which end of the wire the port belongs to
func (p *Port) Side() Side {
	return p.side
}

func (p *Port) SetDirection(line bus.Line, dir bus.Direction) error {
	w := p.wire
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return bus.ErrClosed
	}

	var waits []syncWait
	switch dir {
	case bus.Output:
		if !p.owns[line] {
			w.mu.Unlock()
			return bus.ErrNotOwner
		}
		if d := w.driver[line]; d != nil && d != p {
			w.mu.Unlock()
			return bus.ErrContention
		}
		p.dir[line] = bus.Output
		w.driver[line] = p
		waits = w.update(line, p)
	default:
		p.dir[line] = bus.Input
		if w.driver[line] == p {
			w.driver[line] = nil
			waits = w.update(line, p)
		}
	}
	w.mu.Unlock()

	return w.settle(waits)
}

func (p *Port) Set(line bus.Line, high bool) error {
	w := p.wire
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return bus.ErrClosed
	}
	if p.dir[line] != bus.Output {
		w.mu.Unlock()
		return bus.ErrNotOutput
	}
	p.out[line] = high
	waits := w.update(line, p)
	w.mu.Unlock()

	return w.settle(waits)
}

func (p *Port) Get(line bus.Line) (bool, error) {
	w := p.wire
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false, bus.ErrClosed
	}
	return w.level[line], nil
}

func (p *Port) WaitLevel(ctx context.Context, line bus.Line, high bool) error {
	if log := p.logs[line]; log != nil {
		return log.Wait(ctx, high)
	}

	w := p.wire
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return bus.ErrClosed
		}
		if w.level[line] == high {
			w.mu.Unlock()
			return nil
		}
		ch := w.changed
		w.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Resync drops the queued transitions of a watched line
func (p *Port) Resync(line bus.Line) error {
	if p.wire.closedNow() {
		return bus.ErrClosed
	}
	if log := p.logs[line]; log != nil {
		log.Resync()
	}
	return nil
}

// Direction returns the port's current direction for a line
func (p *Port) Direction(line bus.Line) bus.Direction {
	p.wire.mu.Lock()
	defer p.wire.mu.Unlock()
	return p.dir[line]
}

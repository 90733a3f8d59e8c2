//go:build rp2040 || rp2350

package main

import (
	"context"
	"machine"
	"runtime"

	"lensbus/bus"
)

// PinMap assigns a GPIO to every bus line
type PinMap [bus.NumLines]machine.Pin

// Wiring of the two board revisions
var (
	LegacyPins = PinMap{
		bus.Clock:   machine.GPIO2,
		bus.Data:    machine.GPIO3,
		bus.BodyAck: machine.GPIO4,
		bus.LensAck: machine.GPIO5,
		bus.Power:   machine.GPIO6,
		bus.Focus:   machine.GPIO7,
		bus.Shutter: machine.GPIO8,
	}
	RevisedPins = PinMap{
		bus.Clock:   machine.GPIO10,
		bus.Data:    machine.GPIO11,
		bus.BodyAck: machine.GPIO12,
		bus.LensAck: machine.GPIO13,
		bus.Power:   machine.GPIO14,
		bus.Focus:   machine.GPIO15,
		bus.Shutter: machine.GPIO16,
	}
)

// PinLines implements bus.Lines on machine pins. When a PIO shift
// register is attached it owns the clock and data pins.
type PinLines struct {
	pins  PinMap
	dir   [bus.NumLines]bus.Direction
	shift *PIOShift
}

// NewPinLines configures every pin as an input
func NewPinLines(pins PinMap) *PinLines {
	l := &PinLines{pins: pins}
	for _, p := range pins {
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	return l
}

// AttachShift hands the clock and data pins to the PIO shift register
func (l *PinLines) AttachShift(s *PIOShift) {
	l.shift = s
}

func (l *PinLines) owned(line bus.Line) bool {
	return l.shift != nil && l.shift.owns(line)
}

func (l *PinLines) SetDirection(line bus.Line, dir bus.Direction) error {
	if line >= bus.NumLines {
		return bus.ErrNotOwner
	}
	l.dir[line] = dir
	if l.owned(line) {
		l.shift.setOutput(line, dir == bus.Output)
		return nil
	}
	if dir == bus.Output {
		l.pins[line].Configure(machine.PinConfig{Mode: machine.PinOutput})
		l.pins[line].Set(line.Idle())
	} else {
		l.pins[line].Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	return nil
}

func (l *PinLines) Set(line bus.Line, high bool) error {
	if line >= bus.NumLines || l.dir[line] != bus.Output {
		return bus.ErrNotOutput
	}
	if l.owned(line) {
		l.shift.set(line, high)
		return nil
	}
	l.pins[line].Set(high)
	return nil
}

// Get reads the pad level, which works whatever function owns the pin
func (l *PinLines) Get(line bus.Line) (bool, error) {
	return l.pins[line].Get(), nil
}

// WaitLevel busy-polls, yielding so the power watcher gets to run on the
// cooperative scheduler. The peer's pulses are longer than one poll.
func (l *PinLines) WaitLevel(ctx context.Context, line bus.Line, high bool) error {
	p := l.pins[line]
	done := ctx.Done()
	for p.Get() != high {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return nil
}

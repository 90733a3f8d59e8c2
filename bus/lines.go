// Package bus describes the physical body/lens link as a small set of named
// logic lines and the capability interface every line adapter implements.
package bus

import (
	"context"
	"errors"
)

// Line identifies one logic line of the body/lens link
type Line uint8

const (
	// Clock is driven by the body; idle high
	Clock Line = iota
	// Data is half-duplex and owned by one side at a time
	Data
	// BodyAck is the body's handshake line
	BodyAck
	// LensAck is the lens's handshake line
	LensAck
	// Power is raised by the body to wake the lens
	Power
	// Focus is a body-only stimulus line
	Focus
	// Shutter is a body-only stimulus line
	Shutter

	NumLines
)

var lineNames = [NumLines]string{
	Clock:   "clock",
	Data:    "data",
	BodyAck: "body_ack",
	LensAck: "lens_ack",
	Power:   "power",
	Focus:   "focus",
	Shutter: "shutter",
}

func (l Line) String() string {
	if l < NumLines {
		return lineNames[l]
	}
	return "line(" + itoa(int(l)) + ")"
}

// ParseLine returns the line with the given name
func ParseLine(name string) (Line, error) {
	for i, n := range lineNames {
		if n == name {
			return Line(i), nil
		}
	}
	return 0, errors.New("unknown line: " + name)
}

// Idle returns the level a line rests at when nobody drives it
func (l Line) Idle() bool {
	return l == Clock || l == Data
}

// Direction is the drive direction of a line from one side's point of view
type Direction uint8

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

var (
	// ErrContention is returned when a second side tries to drive the data line
	ErrContention = errors.New("bus: data line already driven by peer")
	// ErrNotOutput is returned when setting a line that is not configured as an output
	ErrNotOutput = errors.New("bus: line is not an output")
	// ErrNotOwner is returned when a side tries to drive a line that belongs to its peer
	ErrNotOwner = errors.New("bus: line belongs to peer")
	// ErrClosed is returned by every operation once the adapter is closed
	ErrClosed = errors.New("bus: closed")
)

// Lines is the capability interface used by the protocol layers.
// Implementations own exclusive access to one side's lines.
type Lines interface {
	// SetDirection switches a line between input and output
	SetDirection(line Line, dir Direction) error

	// Set drives an output line high (true) or low (false)
	Set(line Line, high bool) error

	// Get reads the current level of a line
	Get(line Line) (bool, error)

	// WaitLevel blocks until the line is observed at the given level.
	// Transitions are observed in the order they occurred, so a pulse
	// shorter than the caller's reaction time is not lost.
	// There is no internal timeout; only ctx ends the wait early.
	WaitLevel(ctx context.Context, line Line, high bool) error
}

// Resyncer is implemented by adapters that queue peer transitions. Resync
// drops the queued transitions of a line so the next wait starts from the
// line's current level.
type Resyncer interface {
	Resync(line Line) error
}

// Resync resyncs line when the adapter queues transitions and is a no-op
// for adapters that sample levels directly
func Resync(l Lines, line Line) error {
	if r, ok := l.(Resyncer); ok {
		return r.Resync(line)
	}
	return nil
}

// Resetter is implemented by shift-register peripherals that can discard a
// partially shifted byte
type Resetter interface {
	Reset() error
}

// itoa converts int to string without importing strconv
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

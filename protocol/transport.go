package protocol

import (
	"context"
	"errors"

	"lensbus/bus"
	"tinygo.org/x/drivers"
)

// Transport moves single bytes over the shared data line, LSB first.
// Data is set while the clock is low and sampled on the rising edge.
//
// Every call blocks until the byte has been shifted and is not reentrant.
// The caller owns line direction: WriteByte takes the data line, and the
// reader must have released it beforehand. A stalled clock blocks forever
// unless ctx ends.
type Transport interface {
	// WriteByte shifts one byte out and leaves the data line driven
	WriteByte(ctx context.Context, b byte) error

	// ReadByte shifts one byte in
	ReadByte(ctx context.Context) (byte, error)

	// Release relinquishes the data line so the peer may drive it
	Release() error

	// Reset recovers from a dropped clock. The initiator drops the clock for
	// a fixed time; the responder absorbs the dropped cycle and clears any
	// partially shifted state.
	Reset(ctx context.Context) error

	// Kind reports how bytes are shifted
	Kind() TransportKind
}

// NewTransport builds the transport for a role. spi is only used by the
// ShiftRegister kind and may be nil otherwise.
func NewTransport(role Role, kind TransportKind, lines bus.Lines, spi drivers.SPI, rev Revision, delay bus.Delayer) (Transport, error) {
	if delay == nil {
		delay = bus.HostDelay{}
	}
	switch kind {
	case BitBang:
		bb := bitBang{lines: lines, delay: delay, rev: rev}
		if role == RoleInitiator {
			return &BitBangInitiator{bb}, nil
		}
		return &BitBangResponder{bb}, nil
	case ShiftRegister:
		if spi == nil {
			return nil, errNoShiftRegister
		}
		sr := shift{lines: lines, spi: spi, delay: delay, rev: rev}
		if role == RoleInitiator {
			return &ShiftInitiator{sr}, nil
		}
		return &ShiftResponder{sr}, nil
	}
	return nil, errUnknownTransport
}

var (
	errNoShiftRegister  = errors.New("protocol: shift-register transport needs a peripheral")
	errUnknownTransport = errors.New("protocol: unknown transport kind")
)

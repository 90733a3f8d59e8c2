package protocol

import (
	"context"
)

// Responder reads commands and writes responses on the lens side
type Responder struct {
	t    Transport
	sync *Synchronizer
	rev  Revision
}

// NewResponder creates the lens-side framer
func NewResponder(t Transport, sync *Synchronizer, rev Revision) *Responder {
	return &Responder{t: t, sync: sync, rev: rev}
}

// Revision returns the protocol revision the responder speaks
func (f *Responder) Revision() Revision {
	return f.rev
}

// Synchronizer returns the handshake synchronizer the framer paces bytes with
func (f *Responder) Synchronizer() *Synchronizer {
	return f.sync
}

// cycle runs one byte inside a handshake ping-pong:
// assert, wait peer high, transfer, wait peer low, release, clear
func (f *Responder) cycle(ctx context.Context, transfer func() error, release bool) error {
	if err := f.sync.Assert(true); err != nil {
		return err
	}
	if err := f.sync.WaitHigh(ctx); err != nil {
		return err
	}
	f.sync.setState(HandshakeTransferring)
	if err := transfer(); err != nil {
		return err
	}
	if err := f.sync.WaitLow(ctx); err != nil {
		return err
	}
	if release {
		if err := f.t.Release(); err != nil {
			return err
		}
	}
	if err := f.sync.Assert(false); err != nil {
		return err
	}
	f.sync.setState(HandshakeIdle)
	return nil
}

func (f *Responder) writeCycle(ctx context.Context, b byte) error {
	return f.cycle(ctx, func() error {
		return f.t.WriteByte(ctx, b)
	}, true)
}

func (f *Responder) readCycle(ctx context.Context) (byte, error) {
	var b byte
	err := f.cycle(ctx, func() error {
		var err error
		b, err = f.t.ReadByte(ctx)
		return err
	}, false)
	return b, err
}

// ReadRaw reads one unframed byte without acknowledging it
func (f *Responder) ReadRaw(ctx context.Context) (byte, error) {
	return f.readCycle(ctx)
}

// ReadBytesChecksum reads exactly n bytes and acknowledges them with their sum
func (f *Responder) ReadBytesChecksum(ctx context.Context, n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := range buf {
		b, err := f.readCycle(ctx)
		if err != nil {
			return buf[:i], err
		}
		buf[i] = b
	}
	if err := f.writeCycle(ctx, Checksum(buf)); err != nil {
		return buf, err
	}
	return buf, nil
}

// WriteBytesChecksum writes the payload length, the payload and its sum.
// The length prefix is not part of the sum.
func (f *Responder) WriteBytesChecksum(ctx context.Context, payload []byte) error {
	if len(payload) > f.rev.MaxLength() {
		return ErrPayloadTooLong
	}
	n := len(payload)
	for i := 0; i < f.rev.LengthWidth; i++ {
		if err := f.writeCycle(ctx, byte(n>>(8*i))); err != nil {
			return err
		}
	}
	for _, b := range payload {
		if err := f.writeCycle(ctx, b); err != nil {
			return err
		}
	}
	return f.writeCycle(ctx, Checksum(payload))
}

// WriteRaw writes one unframed byte
func (f *Responder) WriteRaw(ctx context.Context, b byte) error {
	return f.writeCycle(ctx, b)
}

// ResetTransport absorbs a dropped clock and clears partial transport state
func (f *Responder) ResetTransport(ctx context.Context) error {
	return f.t.Reset(ctx)
}

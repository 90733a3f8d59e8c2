package protocol

import (
	"context"

	"lensbus/bus"
)

// Response describes one length-prefixed response frame read by the initiator
type Response struct {
	// Length is the payload length advertised by the responder
	Length int
	// N is the number of payload bytes stored in the caller's buffer
	N int
	// Checksum is the trailing byte as received
	Checksum byte
	// Valid reports whether Checksum matches the payload
	Valid bool
}

// Initiator frames commands and reads responses on the body side.
// No frame is retried; resilience is the caller's responsibility.
type Initiator struct {
	t     Transport
	sync  *Synchronizer
	rev   Revision
	delay bus.Delayer
}

// NewInitiator creates the body-side framer
func NewInitiator(t Transport, sync *Synchronizer, rev Revision, delay bus.Delayer) *Initiator {
	if delay == nil {
		delay = bus.HostDelay{}
	}
	return &Initiator{t: t, sync: sync, rev: rev, delay: delay}
}

// Synchronizer returns the handshake synchronizer the framer paces bytes with
func (f *Initiator) Synchronizer() *Synchronizer {
	return f.sync
}

// cycle runs one byte inside a handshake ping-pong:
// assert, wait peer high, transfer, clear, wait peer low
func (f *Initiator) cycle(ctx context.Context, transfer func() error) error {
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
	if err := f.sync.Assert(false); err != nil {
		return err
	}
	if err := f.sync.WaitLow(ctx); err != nil {
		return err
	}
	f.sync.setState(HandshakeIdle)
	return nil
}

func (f *Initiator) writeCycle(ctx context.Context, b byte) error {
	return f.cycle(ctx, func() error {
		return f.t.WriteByte(ctx, b)
	})
}

func (f *Initiator) readCycle(ctx context.Context) (byte, error) {
	var b byte
	err := f.cycle(ctx, func() error {
		var err error
		b, err = f.t.ReadByte(ctx)
		return err
	})
	return b, err
}

// WriteBlock writes payload one handshake cycle per byte, relinquishes the
// data line and reads back the responder's 1-byte ack
func (f *Initiator) WriteBlock(ctx context.Context, payload []byte) (byte, error) {
	for _, b := range payload {
		if err := f.writeCycle(ctx, b); err != nil {
			return 0, err
		}
	}
	if err := f.t.Release(); err != nil {
		return 0, err
	}
	return f.readCycle(ctx)
}

// SendCommand writes a 4-byte command frame and compares the responder's
// ack with the running sum. It reports a mismatch without retrying.
func (f *Initiator) SendCommand(ctx context.Context, cmd [CommandSize]byte) (bool, error) {
	_, ok, err := f.SendCommandAck(ctx, cmd)
	return ok, err
}

// SendCommandAck is SendCommand that also returns the ack byte as received
func (f *Initiator) SendCommandAck(ctx context.Context, cmd [CommandSize]byte) (byte, bool, error) {
	ack, err := f.WriteBlock(ctx, cmd[:])
	if err != nil {
		return 0, false, err
	}
	return ack, ack == Checksum(cmd[:]), nil
}

// ReadResponse reads a length-prefixed response into buf and consumes the
// trailing checksum. If the advertised length exceeds len(buf) it returns
// ErrResponseOverrun with buf untouched; the frame is left unread on the bus.
func (f *Initiator) ReadResponse(ctx context.Context, buf []byte) (Response, error) {
	var resp Response
	if err := f.t.Release(); err != nil {
		return resp, err
	}

	for i := 0; i < f.rev.LengthWidth; i++ {
		b, err := f.readCycle(ctx)
		if err != nil {
			return resp, err
		}
		resp.Length |= int(b) << (8 * i)
	}
	if resp.Length > len(buf) {
		return resp, ErrResponseOverrun
	}

	for i := 0; i < resp.Length; i++ {
		b, err := f.readCycle(ctx)
		if err != nil {
			return resp, err
		}
		buf[i] = b
		resp.N++
	}

	sum, err := f.readCycle(ctx)
	if err != nil {
		return resp, err
	}
	resp.Checksum = sum
	resp.Valid = sum == Checksum(buf[:resp.N])
	return resp, nil
}

// ReadBytes reads a response payload into buf and returns its length.
// The trailing checksum is consumed but not validated; use ReadResponse to
// inspect it. An oversized response yields 0 and ErrResponseOverrun.
func (f *Initiator) ReadBytes(ctx context.Context, buf []byte) (int, error) {
	resp, err := f.ReadResponse(ctx, buf)
	if err != nil {
		return 0, err
	}
	return resp.N, nil
}

// ExtendedPacket sends a two-stage frame. pkt[0:4] is written first and its
// ack stored in pkt[4]; after the settle delay pkt[5:16] is written and the
// final ack stored in pkt[16]. It reports whether both acks matched.
func (f *Initiator) ExtendedPacket(ctx context.Context, pkt *[ExtendedSize]byte) (bool, error) {
	head := pkt[:ExtendedHead]
	ack, err := f.WriteBlock(ctx, head)
	if err != nil {
		return false, err
	}
	pkt[ExtendedAck1] = ack

	f.delay.Sleep(f.rev.ExtendedSettle)

	body := pkt[ExtendedAck1+1 : ExtendedAck2]
	ack, err = f.WriteBlock(ctx, body)
	if err != nil {
		return false, err
	}
	pkt[ExtendedAck2] = ack

	return pkt[ExtendedAck1] == Checksum(head) && pkt[ExtendedAck2] == Checksum(body), nil
}

// ReadRaw reads one unframed byte, such as the announce byte after a wake command
func (f *Initiator) ReadRaw(ctx context.Context) (byte, error) {
	if err := f.t.Release(); err != nil {
		return 0, err
	}
	return f.readCycle(ctx)
}

// DropClock holds the clock low briefly so the responder resets its transport
func (f *Initiator) DropClock(ctx context.Context) error {
	return f.t.Reset(ctx)
}

package protocol

import (
	"context"

	"lensbus/bus"
)

type bitBang struct {
	lines bus.Lines
	delay bus.Delayer
	rev   Revision
}

func (t *bitBang) Kind() TransportKind {
	return BitBang
}

func (t *bitBang) Release() error {
	return t.lines.SetDirection(bus.Data, bus.Input)
}

// BitBangInitiator drives the clock from software at the revision's bit rate
type BitBangInitiator struct {
	bitBang
}

func (t *BitBangInitiator) WriteByte(ctx context.Context, value byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.lines.SetDirection(bus.Data, bus.Output); err != nil {
		return err
	}
	if err := t.lines.SetDirection(bus.Clock, bus.Output); err != nil {
		return err
	}

	for i := 0; i < 8; i++ {
		if err := t.lines.Set(bus.Clock, false); err != nil {
			return err
		}
		if err := t.lines.Set(bus.Data, value&0x01 != 0); err != nil {
			return err
		}
		t.delay.Sleep(t.rev.HalfBit)
		if err := t.lines.Set(bus.Clock, true); err != nil {
			return err
		}
		t.delay.Sleep(t.rev.HalfBit)
		value >>= 1
	}

	// Give the responder time to latch the last bit
	t.delay.Sleep(t.rev.WriteSettle)
	return nil
}

func (t *BitBangInitiator) ReadByte(ctx context.Context) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var value byte
	for i := 0; i < 8; i++ {
		if err := t.lines.Set(bus.Clock, false); err != nil {
			return 0, err
		}
		t.delay.Sleep(t.rev.HalfBit)
		if err := t.lines.Set(bus.Clock, true); err != nil {
			return 0, err
		}
		value >>= 1
		high, err := t.lines.Get(bus.Data)
		if err != nil {
			return 0, err
		}
		if high {
			value |= 0x80
		}
		t.delay.Sleep(t.rev.HalfBit)
	}
	return value, nil
}

func (t *BitBangInitiator) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.lines.Set(bus.Clock, false); err != nil {
		return err
	}
	t.delay.Sleep(t.rev.ClockDrop)
	return t.lines.Set(bus.Clock, true)
}

// BitBangResponder follows the initiator's clock by polling it
type BitBangResponder struct {
	bitBang
}

func (t *BitBangResponder) WriteByte(ctx context.Context, value byte) error {
	if err := t.lines.SetDirection(bus.Data, bus.Output); err != nil {
		return err
	}

	for i := 0; i < 8; i++ {
		if err := t.lines.WaitLevel(ctx, bus.Clock, false); err != nil {
			return err
		}
		if err := t.lines.Set(bus.Data, value&0x01 != 0); err != nil {
			return err
		}
		if err := t.lines.WaitLevel(ctx, bus.Clock, true); err != nil {
			return err
		}
		value >>= 1
	}
	return nil
}

func (t *BitBangResponder) ReadByte(ctx context.Context) (byte, error) {
	var value byte
	for i := 0; i < 8; i++ {
		if err := t.lines.WaitLevel(ctx, bus.Clock, false); err != nil {
			return 0, err
		}
		if err := t.lines.WaitLevel(ctx, bus.Clock, true); err != nil {
			return 0, err
		}
		value >>= 1
		high, err := t.lines.Get(bus.Data)
		if err != nil {
			return 0, err
		}
		if high {
			value |= 0x80
		}
	}
	return value, nil
}

func (t *BitBangResponder) Reset(ctx context.Context) error {
	if err := t.lines.WaitLevel(ctx, bus.Clock, false); err != nil {
		return err
	}
	return t.lines.WaitLevel(ctx, bus.Clock, true)
}

package protocol

import (
	"context"

	"lensbus/bus"
	"tinygo.org/x/drivers"
)

// shift hands whole bytes to a peripheral configured LSB first, clock idle
// high, sampling on the trailing (rising) edge
type shift struct {
	lines bus.Lines
	spi   drivers.SPI
	delay bus.Delayer
	rev   Revision
}

func (t *shift) Kind() TransportKind {
	return ShiftRegister
}

func (t *shift) Release() error {
	return t.lines.SetDirection(bus.Data, bus.Input)
}

func (t *shift) write(ctx context.Context, value byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Direction alternates between the sides, so it is re-asserted before every transmit
	if err := t.lines.SetDirection(bus.Data, bus.Output); err != nil {
		return err
	}
	_, err := t.spi.Transfer(value)
	return err
}

func (t *shift) read(ctx context.Context) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return t.spi.Transfer(0xFF)
}

// ShiftInitiator clocks bytes with the peripheral in master mode
type ShiftInitiator struct {
	shift
}

func (t *ShiftInitiator) WriteByte(ctx context.Context, value byte) error {
	return t.write(ctx, value)
}

func (t *ShiftInitiator) ReadByte(ctx context.Context) (byte, error) {
	return t.read(ctx)
}

func (t *ShiftInitiator) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.lines.Set(bus.Clock, false); err != nil {
		return err
	}
	t.delay.Sleep(t.rev.ClockDrop)
	return t.lines.Set(bus.Clock, true)
}

// ShiftResponder shifts bytes with the peripheral in slave mode
type ShiftResponder struct {
	shift
}

func (t *ShiftResponder) WriteByte(ctx context.Context, value byte) error {
	return t.write(ctx, value)
}

func (t *ShiftResponder) ReadByte(ctx context.Context) (byte, error) {
	return t.read(ctx)
}

// Reset absorbs the dropped clock cycle, then discards whatever the
// peripheral shifted in while it happened
func (t *ShiftResponder) Reset(ctx context.Context) error {
	if err := t.lines.WaitLevel(ctx, bus.Clock, false); err != nil {
		return err
	}
	if err := t.lines.WaitLevel(ctx, bus.Clock, true); err != nil {
		return err
	}
	if r, ok := t.spi.(bus.Resetter); ok {
		return r.Reset()
	}
	return nil
}

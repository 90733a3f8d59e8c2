package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lensbus/bus"
)

func TestTransportRoundTripAllBytes(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			l := newLink(t, v.rev, v.kind)
			ctx := testContext(t)

			for i := 0; i < 256; i++ {
				want := byte(i)

				// Body to lens
				var got byte
				done := goRun(func() error {
					var err error
					got, err = l.lensT.ReadByte(ctx)
					return err
				})
				require.NoError(t, l.bodyT.WriteByte(ctx, want))
				require.NoError(t, waitDone(t, done))
				require.Equal(t, want, got, "body to lens")

				// Lens to body
				require.NoError(t, l.bodyT.Release())
				done = goRun(func() error {
					return l.lensT.WriteByte(ctx, want)
				})
				back, err := l.bodyT.ReadByte(ctx)
				require.NoError(t, err)
				require.NoError(t, waitDone(t, done))
				require.Equal(t, want, back, "lens to body")
				require.NoError(t, l.lensT.Release())
			}
		})
	}
}

func TestWriteByteLeavesDataDriven(t *testing.T) {
	l := newLink(t, Legacy, BitBang)
	ctx := testContext(t)

	done := goRun(func() error {
		_, err := l.lensT.ReadByte(ctx)
		return err
	})
	require.NoError(t, l.bodyT.WriteByte(ctx, 0x3C))
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, bus.Output, l.bodyLines.Direction(bus.Data))
	require.NoError(t, l.bodyT.Release())
	assert.Equal(t, bus.Input, l.bodyLines.Direction(bus.Data))
}

// recorder is a bus.Lines that logs every drive and replays canned data levels
type recorder struct {
	events []event
	data   []bool
}

type event struct {
	line bus.Line
	high bool
}

func (r *recorder) SetDirection(bus.Line, bus.Direction) error { return nil }

func (r *recorder) Set(line bus.Line, high bool) error {
	r.events = append(r.events, event{line, high})
	return nil
}

func (r *recorder) Get(bus.Line) (bool, error) {
	if len(r.data) == 0 {
		return true, nil
	}
	v := r.data[0]
	r.data = r.data[1:]
	return v, nil
}

func (r *recorder) WaitLevel(context.Context, bus.Line, bool) error { return nil }

func TestBitBangWaveform(t *testing.T) {
	rec := &recorder{}
	tr, err := NewTransport(RoleInitiator, BitBang, rec, nil, Legacy, bus.NoDelay{})
	require.NoError(t, err)

	require.NoError(t, tr.WriteByte(context.Background(), 0xA5))
	require.Len(t, rec.events, 24)

	var bits []bool
	for i := 0; i < 8; i++ {
		fall, data, rise := rec.events[3*i], rec.events[3*i+1], rec.events[3*i+2]
		assert.Equal(t, event{bus.Clock, false}, fall, "bit %d", i)
		assert.Equal(t, bus.Data, data.line, "bit %d", i)
		assert.Equal(t, event{bus.Clock, true}, rise, "bit %d", i)
		bits = append(bits, data.high)
	}
	// 0xA5 LSB first
	assert.Equal(t, []bool{true, false, true, false, false, true, false, true}, bits)
}

func TestBitBangReadAccumulatesLSBFirst(t *testing.T) {
	rec := &recorder{data: []bool{false, true, true, false, true, false, false, true}}
	tr, err := NewTransport(RoleInitiator, BitBang, rec, nil, Legacy, bus.NoDelay{})
	require.NoError(t, err)

	b, err := tr.ReadByte(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0x96), b)
}

func TestResetAbsorbsDroppedClock(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			l := newLink(t, v.rev, v.kind)
			ctx := testContext(t)

			done := goRun(func() error {
				return l.lensT.Reset(ctx)
			})
			require.NoError(t, l.bodyT.Reset(ctx))
			require.NoError(t, waitDone(t, done))
			assert.True(t, l.wire.Level(bus.Clock))

			if v.kind == ShiftRegister {
				assert.Equal(t, 1, l.lensShift.Resets())
			}

			// The next byte still lines up
			var got byte
			done = goRun(func() error {
				var err error
				got, err = l.lensT.ReadByte(ctx)
				return err
			})
			require.NoError(t, l.bodyT.WriteByte(ctx, 0x5A))
			require.NoError(t, waitDone(t, done))
			assert.Equal(t, byte(0x5A), got)
		})
	}
}

func TestShiftTransportNeedsPeripheral(t *testing.T) {
	_, err := NewTransport(RoleInitiator, ShiftRegister, &recorder{}, nil, Revised, nil)
	assert.Error(t, err)
}

package protocol

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lensbus/bus"
)

var wakeCommand = [CommandSize]byte{0xB0, 0xF2, 0x00, 0x00}

func TestSendCommandAck(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			l := newLink(t, v.rev, v.kind)
			ctx := testContext(t)

			var got []byte
			done := goRun(func() error {
				var err error
				got, err = l.lens.ReadBytesChecksum(ctx, CommandSize)
				return err
			})

			ok, err := l.body.SendCommand(ctx, wakeCommand)
			require.NoError(t, err)
			require.NoError(t, waitDone(t, done))
			assert.True(t, ok)
			assert.Equal(t, wakeCommand[:], got)

			assert.Equal(t, HandshakeIdle, l.body.Synchronizer().State())
			assert.Equal(t, HandshakeIdle, l.lens.Synchronizer().State())
			assert.False(t, l.wire.Level(bus.BodyAck))
			assert.False(t, l.wire.Level(bus.LensAck))
		})
	}
}

func TestSendCommandReportsMismatch(t *testing.T) {
	l := newLink(t, Revised, ShiftRegister)
	ctx := testContext(t)

	done := goRun(func() error {
		for i := 0; i < CommandSize; i++ {
			if _, err := l.lens.ReadRaw(ctx); err != nil {
				return err
			}
		}
		return l.lens.WriteRaw(ctx, 0x5A)
	})

	ack, ok, err := l.body.SendCommandAck(ctx, wakeCommand)
	require.NoError(t, err)
	require.NoError(t, waitDone(t, done))
	assert.False(t, ok)
	assert.Equal(t, byte(0x5A), ack, "the received ack, not the expected one")
}

func TestReadResponse(t *testing.T) {
	status := []byte{0x00, 0x0A, 0x10, 0xC4, 0x09}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			l := newLink(t, v.rev, v.kind)
			ctx := testContext(t)

			done := goRun(func() error {
				return l.lens.WriteBytesChecksum(ctx, status)
			})

			buf := make([]byte, 16)
			resp, err := l.body.ReadResponse(ctx, buf)
			require.NoError(t, err)
			require.NoError(t, waitDone(t, done))

			assert.Equal(t, 5, resp.Length)
			assert.Equal(t, 5, resp.N)
			assert.Equal(t, byte(0xE7), resp.Checksum)
			assert.True(t, resp.Valid)
			assert.Equal(t, status, buf[:resp.N])
		})
	}
}

func TestReadBytesLengthPrefixWidth(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, 300)

	l := newLink(t, Legacy, BitBang)
	ctx := testContext(t)
	done := goRun(func() error {
		return l.lens.WriteBytesChecksum(ctx, payload)
	})

	buf := make([]byte, 512)
	n, err := l.body.ReadBytes(ctx, buf)
	require.NoError(t, err)
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, 300, n)

	// An 8-bit prefix cannot carry it
	l = newLink(t, Revised, BitBang)
	err = l.lens.WriteBytesChecksum(ctx, payload)
	assert.ErrorIs(t, err, ErrPayloadTooLong)
}

func TestReadBytesOverrunLeavesBufferUntouched(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			l := newLink(t, v.rev, v.kind)
			ctx := testContext(t)

			done := goRun(func() error {
				return l.lens.WriteBytesChecksum(ctx, make([]byte, v.rev.StandbyLength))
			})

			buf := bytes.Repeat([]byte{0xEE}, 5)
			n, err := l.body.ReadBytes(ctx, buf)
			assert.ErrorIs(t, err, ErrResponseOverrun)
			assert.Zero(t, n)
			assert.Equal(t, bytes.Repeat([]byte{0xEE}, 5), buf)

			// The responder is left mid-frame until the wire goes away
			l.wire.Close()
			assert.ErrorIs(t, waitDone(t, done), bus.ErrClosed)
		})
	}
}

func TestExtendedPacket(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			l := newLink(t, v.rev, v.kind)
			ctx := testContext(t)

			var head, body []byte
			done := goRun(func() error {
				var err error
				if head, err = l.lens.ReadBytesChecksum(ctx, ExtendedHead); err != nil {
					return err
				}
				body, err = l.lens.ReadBytesChecksum(ctx, ExtendedBody)
				return err
			})

			pkt := [ExtendedSize]byte{
				0x60, 0x80, 0xFE, 0x02, 0x00,
				0x0A, 0x00,
				0x01, 0xBD, 0x04, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00, 0x00,
			}
			ok, err := l.body.ExtendedPacket(ctx, &pkt)
			require.NoError(t, err)
			require.NoError(t, waitDone(t, done))
			assert.True(t, ok)

			assert.Equal(t, pkt[:ExtendedHead], head)
			assert.Equal(t, pkt[ExtendedAck1+1:ExtendedAck2], body)
			assert.Equal(t, Checksum(pkt[:4]), pkt[ExtendedAck1])
			assert.Equal(t, Checksum(pkt[5:16]), pkt[ExtendedAck2])
		})
	}
}

func TestRawByte(t *testing.T) {
	l := newLink(t, Revised, ShiftRegister)
	ctx := testContext(t)

	done := goRun(func() error {
		return l.lens.WriteRaw(ctx, 0x00)
	})
	b, err := l.body.ReadRaw(ctx)
	require.NoError(t, err)
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, byte(0x00), b)
}

func TestSynchronizerWaitHasNoInternalTimeout(t *testing.T) {
	l := newLink(t, Revised, BitBang)
	sync := l.body.Synchronizer()

	waits := map[string]func(context.Context) error{
		"high": sync.WaitHigh,
		"rise": sync.WaitRise,
		"fall": sync.WaitFall,
	}
	for name, wait := range waits {
		t.Run(name, func(t *testing.T) {
			const watchdog = 50 * time.Millisecond
			ctx, cancel := context.WithTimeout(context.Background(), watchdog)
			defer cancel()

			start := time.Now()
			err := wait(ctx)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.GreaterOrEqual(t, time.Since(start), watchdog)
		})
	}
}

func TestSynchronizerPrePollDelay(t *testing.T) {
	var slept []time.Duration
	delay := bus.DelayFunc(func(d time.Duration) {
		slept = append(slept, d)
	})

	rec := &recorder{}
	lens := NewSynchronizer(rec, RoleResponder, Revised, delay)
	require.NoError(t, lens.WaitHigh(context.Background()))
	require.NoError(t, lens.WaitLow(context.Background()))
	assert.Equal(t, []time.Duration{2 * time.Microsecond, 2 * time.Microsecond}, slept)

	slept = nil
	body := NewSynchronizer(rec, RoleInitiator, Revised, delay)
	require.NoError(t, body.WaitHigh(context.Background()))
	assert.Equal(t, []time.Duration{0}, slept)
}

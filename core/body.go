package core

import (
	"context"
	"errors"

	"lensbus/bus"
	"lensbus/protocol"
)

// AperturePackets are the two captured aperture adjustments the body
// alternates between on every parameter change
var AperturePackets = [2][protocol.ExtendedSize]byte{
	{0x60, 0x80, 0xFE, 0x02, 0x00, 0x0A, 0x00, 0x01, 0xBD, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x60, 0x80, 0x04, 0xFE, 0x00, 0x0A, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xFF, 0x7F, 0x05, 0x00, 0x00},
}

// LegacyModeBlock is the second stage of the legacy mode command
var LegacyModeBlock = []byte{0x05, 0x00, 0x00, 0x00, 0x00, 0x00}

// BodyConfig configures a camera-body session
type BodyConfig struct {
	LinkConfig

	// Timing overrides the captured delays; zero fields keep their default
	Timing Timing
	// Cycles bounds the steady-state loop. Zero runs until the context ends.
	Cycles int
}

// Body drives the link as the initiator: it powers the lens, replays the
// wake-up command sequence and then polls standby and changes aperture
// on a fixed schedule
type Body struct {
	*session
	framer *protocol.Initiator
	timing Timing
	cycles int
	focus  bool
}

// NewBody creates a body session. Lines are not touched until PowerUp.
func NewBody(cfg BodyConfig) (*Body, error) {
	s, err := newSession(cfg.LinkConfig, protocol.RoleInitiator)
	if err != nil {
		return nil, err
	}
	return &Body{
		session: s,
		framer:  protocol.NewInitiator(s.t, s.sync, cfg.Revision, s.cfg.Delay),
		timing:  cfg.Timing.withDefaults(),
		cycles:  cfg.Cycles,
	}, nil
}

// configure puts every body-owned line in its idle state
func (b *Body) configure() error {
	lines := b.cfg.Lines
	for _, l := range []bus.Line{bus.Clock, bus.Power, bus.Focus, bus.Shutter} {
		if err := lines.SetDirection(l, bus.Output); err != nil {
			return err
		}
		if err := lines.Set(l, l.Idle()); err != nil {
			return err
		}
	}
	if err := lines.SetDirection(bus.Data, bus.Input); err != nil {
		return err
	}
	b.focus = false
	return b.sync.Configure()
}

// PowerUp raises power, performs the wake handshake and replays the
// power-up command sequence
func (b *Body) PowerUp(ctx context.Context) error {
	b.setState(StatePoweringUp)
	if err := b.configure(); err != nil {
		return err
	}

	if err := b.cfg.Lines.Set(bus.Power, true); err != nil {
		return err
	}
	b.sleep(b.timing.WakeSettle)
	// A lens left over from the previous power cycle drops its handshake
	// when it sees power go; only then is its next pulse a wake pulse
	if err := b.sync.WaitLow(ctx); err != nil {
		return err
	}
	if err := b.sync.Assert(true); err != nil {
		return err
	}
	if err := b.sync.WaitFall(ctx); err != nil {
		return err
	}
	if err := b.sync.Assert(false); err != nil {
		return err
	}
	b.sleep(b.timing.BootSettle)

	steps := []func(context.Context) error{
		b.wake,
		b.status,
		b.mode,
		b.descriptor,
		b.legacyMode,
		func(ctx context.Context) error {
			_, err := b.Standby(ctx)
			return err
		},
		func(ctx context.Context) error {
			_, err := b.Command(ctx, "focus_ring", OpFocusRing)
			return err
		},
		func(ctx context.Context) error {
			_, err := b.Command(ctx, "drive", OpDrive)
			return err
		},
	}
	for i, step := range steps {
		if i > 0 {
			b.sleep(b.timing.CommandGap)
		}
		if err := step(ctx); err != nil {
			return err
		}
	}

	b.setState(StateCommanding)
	return nil
}

func (b *Body) wake(ctx context.Context) error {
	if _, err := b.Command(ctx, "wake", OpWake); err != nil {
		return err
	}
	v, err := b.framer.ReadRaw(ctx)
	if err != nil {
		return err
	}
	b.record(FrameRecord{Kind: KindRaw, Name: "wake", Payload: []byte{v}, OK: true})
	b.cfg.Diag.Dump("wake", []byte{v})
	return nil
}

func (b *Body) status(ctx context.Context) error {
	if _, err := b.Command(ctx, "status", OpStatus); err != nil {
		return err
	}
	_, err := b.Response(ctx, "status", len(StatusPayload))
	return err
}

func (b *Body) mode(ctx context.Context) error {
	if _, err := b.Command(ctx, "mode", OpMode); err != nil {
		return err
	}
	return b.framer.DropClock(ctx)
}

func (b *Body) descriptor(ctx context.Context) error {
	if _, err := b.Command(ctx, "descriptor", OpDescriptor); err != nil {
		return err
	}
	_, err := b.Response(ctx, "descriptor", DescriptorLength)
	return err
}

func (b *Body) legacyMode(ctx context.Context) error {
	if _, err := b.Command(ctx, "legacy_mode", OpLegacyMode); err != nil {
		return err
	}
	_, err := b.Block(ctx, "legacy_mode", LegacyModeBlock)
	return err
}

// Command sends one 4-byte command frame. A mismatched ack is logged and
// reported, never retried.
func (b *Body) Command(ctx context.Context, name string, op Opcode) (bool, error) {
	ack, ok, err := b.framer.SendCommandAck(ctx, op)
	if err != nil {
		return false, err
	}
	b.record(FrameRecord{Kind: KindCommand, Name: name, Opcode: op[:], Ack: ack, OK: ok})
	if !ok && b.cfg.Log != nil {
		b.cfg.Log.Warn().Str("opcode", op.String()).Msg("command ack mismatch")
	}
	return ok, nil
}

// Block writes a second-stage payload and checks the responder's ack
func (b *Body) Block(ctx context.Context, name string, payload []byte) (bool, error) {
	ack, err := b.framer.WriteBlock(ctx, payload)
	if err != nil {
		return false, err
	}
	ok := ack == protocol.Checksum(payload)
	b.record(FrameRecord{Kind: KindBlock, Name: name, Payload: payload, Ack: ack, OK: ok})
	return ok, nil
}

// Response reads one length-prefixed response of at most max bytes
func (b *Body) Response(ctx context.Context, name string, max int) ([]byte, error) {
	buf := make([]byte, max)
	resp, err := b.framer.ReadResponse(ctx, buf)
	if errors.Is(err, protocol.ErrResponseOverrun) {
		if b.cfg.Metrics != nil {
			b.cfg.Metrics.AddOverrun(b.role.String())
		}
		if b.cfg.Log != nil {
			b.cfg.Log.Error().
				Str("name", name).
				Int("length", resp.Length).
				Int("capacity", max).
				Msg("response overrun")
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	payload := buf[:resp.N]
	b.record(FrameRecord{Kind: KindResponse, Name: name, Payload: payload, Ack: resp.Checksum, OK: resp.Valid})
	if !resp.Valid && b.cfg.Log != nil {
		b.cfg.Log.Warn().Str("name", name).Msg("response checksum mismatch")
	}
	b.cfg.Diag.Dump(name, payload)
	return payload, nil
}

// Standby polls the lens with the revision's standby command
func (b *Body) Standby(ctx context.Context) ([]byte, error) {
	if _, err := b.Command(ctx, "standby", b.cfg.Revision.StandbyCommand()); err != nil {
		return nil, err
	}
	return b.Response(ctx, "standby", b.cfg.Revision.StandbyLength)
}

// Aperture sends one extended aperture frame and returns it with both
// acks filled in
func (b *Body) Aperture(ctx context.Context, pkt [protocol.ExtendedSize]byte) ([protocol.ExtendedSize]byte, bool, error) {
	ok, err := b.framer.ExtendedPacket(ctx, &pkt)
	if err != nil {
		return pkt, false, err
	}
	b.record(FrameRecord{
		Kind:    KindExtended,
		Name:    "aperture",
		Opcode:  pkt[:protocol.ExtendedHead],
		Payload: pkt[protocol.ExtendedAck1+1 : protocol.ExtendedAck2],
		Ack:     pkt[protocol.ExtendedAck2],
		OK:      ok,
	})
	return pkt, ok, nil
}

// PulseShutter pulses the shutter stimulus line
func (b *Body) PulseShutter() error {
	if err := b.cfg.Lines.Set(bus.Shutter, true); err != nil {
		return err
	}
	b.sleep(b.timing.ShutterPulse)
	return b.cfg.Lines.Set(bus.Shutter, false)
}

// ToggleFocus inverts the focus stimulus line
func (b *Body) ToggleFocus() error {
	b.focus = !b.focus
	return b.cfg.Lines.Set(bus.Focus, b.focus)
}

// frame runs one frame slot: shutter pulse, a standby poll and optionally
// an aperture change, then the focus toggle
func (b *Body) frame(ctx context.Context, aperture *[protocol.ExtendedSize]byte) error {
	b.sleep(b.timing.FrameInterval)
	if err := b.PulseShutter(); err != nil {
		return err
	}
	gap := b.timing.ShutterToStandby
	if aperture != nil {
		gap = b.timing.ShutterToParameter
	}
	b.sleep(gap)
	if _, err := b.Standby(ctx); err != nil {
		return err
	}
	if aperture != nil {
		if _, _, err := b.Aperture(ctx, *aperture); err != nil {
			return err
		}
	}
	b.sleep(b.timing.FocusInterval)
	return b.ToggleFocus()
}

// Run powers the lens up and then runs the steady-state schedule until
// Cycles parameter changes were made or ctx ends. The lens is always
// powered down on return.
func (b *Body) Run(ctx context.Context) error {
	defer b.PowerDown()

	if err := b.PowerUp(ctx); err != nil {
		return err
	}
	for cycle := 0; b.cycles == 0 || cycle < b.cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < b.timing.StandbyPolls; i++ {
			if err := b.frame(ctx, nil); err != nil {
				return err
			}
		}
		pkt := AperturePackets[cycle%len(AperturePackets)]
		if err := b.frame(ctx, &pkt); err != nil {
			return err
		}
	}
	return nil
}

// PowerDown drops the body handshake and power and returns to StateOff
func (b *Body) PowerDown() {
	_ = b.sync.Assert(false)
	_ = b.cfg.Lines.Set(bus.Power, false)
	b.setState(StateOff)
}

// Timing returns the delays the session runs with
func (b *Body) Timing() Timing {
	return b.timing
}


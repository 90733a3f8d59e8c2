package core

import (
	"context"
	"errors"
	"time"

	"lensbus/bus"
	"lensbus/protocol"
)

// ErrPowerLost ends a lens session when the body drops the power line
var ErrPowerLost = errors.New("power lost")

// LensConfig configures a lens session
type LensConfig struct {
	LinkConfig

	// Table overrides the dispatch table built from Revision and Descriptor
	Table *CommandTable
	// Descriptor overrides DefaultDescriptor
	Descriptor []byte
	// WakePulse is how long the lens handshake is held high on wake
	WakePulse time.Duration
}

// Lens answers the body as the responder: it waits for power, performs the
// wake handshake and then serves commands from its dispatch table
type Lens struct {
	*session
	framer    *protocol.Responder
	table     *CommandTable
	wakePulse time.Duration
}

// NewLens creates a lens session
func NewLens(cfg LensConfig) (*Lens, error) {
	s, err := newSession(cfg.LinkConfig, protocol.RoleResponder)
	if err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == nil {
		table = NewLensTable(cfg.Revision, cfg.Descriptor)
	}
	pulse := cfg.WakePulse
	if pulse == 0 {
		pulse = DefaultTiming.LensWakePulse
	}
	return &Lens{
		session:   s,
		framer:    protocol.NewResponder(s.t, s.sync, cfg.Revision),
		table:     table,
		wakePulse: pulse,
	}, nil
}

// Table returns the dispatch table the lens serves
func (l *Lens) Table() *CommandTable {
	return l.table
}

func (l *Lens) configure() error {
	lines := l.cfg.Lines
	for _, line := range []bus.Line{bus.Clock, bus.Data, bus.Power} {
		if err := lines.SetDirection(line, bus.Input); err != nil {
			return err
		}
	}
	if err := bus.Resync(lines, bus.Power); err != nil {
		return err
	}
	return l.sync.Configure()
}

// WaitPowerUp blocks until the body raises power, then answers its
// handshake with a single wake pulse
func (l *Lens) WaitPowerUp(ctx context.Context) error {
	if err := l.configure(); err != nil {
		return err
	}
	if err := l.cfg.Lines.WaitLevel(ctx, bus.Power, true); err != nil {
		return err
	}
	l.setState(StatePoweringUp)

	if err := l.sync.WaitHigh(ctx); err != nil {
		return err
	}
	if err := l.sync.Assert(true); err != nil {
		return err
	}
	l.sleep(l.wakePulse)
	if err := l.sync.Assert(false); err != nil {
		return err
	}
	if err := l.sync.WaitLow(ctx); err != nil {
		return err
	}

	l.setState(StateAwaitingCommand)
	return nil
}

// HandleCommand reads one command frame, acks it and runs its handler.
// An opcode with no table entry has already been acked; it is reported on
// the diagnostics channel and returned as ErrUnknownOpcode.
func (l *Lens) HandleCommand(ctx context.Context) error {
	frame, err := l.framer.ReadBytesChecksum(ctx, protocol.CommandSize)
	if err != nil {
		return err
	}
	op := Opcode(frame)
	ack := protocol.Checksum(frame)

	cmd, data, err := l.table.Dispatch(ctx, l.framer, op)
	if errors.Is(err, ErrUnknownOpcode) {
		l.record(FrameRecord{Kind: KindCommand, Name: "unknown", Opcode: op[:], Ack: ack, OK: true})
		l.cfg.Diag.UnknownOpcode(op)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.AddUnknownOpcode(op)
		}
		if l.cfg.Log != nil {
			l.cfg.Log.Warn().Str("opcode", op.String()).Msg("unknown opcode")
		}
		return err
	}
	l.record(FrameRecord{Kind: KindCommand, Name: cmd.Name, Opcode: op[:], Payload: data, Ack: ack, OK: true})
	return err
}

// Run waits for power-up and serves commands until the body drops power,
// ctx ends or the bus fails. Unknown opcodes do not end the session. On
// power loss the lens lets go of its lines and returns ErrPowerLost; the
// caller starts a new session for the next power cycle.
func (l *Lens) Run(ctx context.Context) error {
	defer l.setState(StateOff)

	if err := l.WaitPowerUp(ctx); err != nil {
		return err
	}

	powered, cut := context.WithCancel(ctx)
	defer cut()
	lost := make(chan error, 1)
	go func() {
		err := l.cfg.Lines.WaitLevel(powered, bus.Power, false)
		if err == nil {
			cut()
		}
		lost <- err
	}()

	for {
		err := l.HandleCommand(powered)
		if err == nil || errors.Is(err, ErrUnknownOpcode) {
			continue
		}
		cut()
		if <-lost == nil {
			l.release()
			if l.cfg.Log != nil {
				l.cfg.Log.Info().Str("session", l.cfg.SessionID).Msg("power lost")
			}
			return ErrPowerLost
		}
		return err
	}
}

// release drops the handshake and the data line, as an unpowered lens would
func (l *Lens) release() {
	_ = l.t.Release()
	_ = l.sync.Assert(false)
}

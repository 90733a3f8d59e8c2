// Package core holds the body and lens session state machines and the
// lens command dispatch table
package core

import (
	"sync/atomic"
	"time"

	"github.com/loopholelabs/logging/types"
	"tinygo.org/x/drivers"

	"lensbus/bus"
	"lensbus/protocol"
)

// LinkConfig is the composition-time wiring shared by both roles
type LinkConfig struct {
	// Lines is the side's exclusive view of the bus
	Lines bus.Lines
	// Shift is the shift-register peripheral, required for the ShiftRegister transport
	Shift drivers.SPI
	// Revision selects the protocol generation
	Revision protocol.Revision
	// Transport selects how bytes are shifted
	Transport protocol.TransportKind
	// Delay is the settle delay primitive; defaults to bus.HostDelay
	Delay bus.Delayer

	Log       types.Logger
	Diag      *Diagnostics
	Metrics   Metrics
	Tracer    Tracer
	SessionID string
}

// session holds what body and lens have in common
type session struct {
	cfg   LinkConfig
	role  protocol.Role
	state uint32 // atomic SessionState
	t     protocol.Transport
	sync  *protocol.Synchronizer
}

func newSession(cfg LinkConfig, role protocol.Role) (*session, error) {
	if cfg.Delay == nil {
		cfg.Delay = bus.HostDelay{}
	}
	t, err := protocol.NewTransport(role, cfg.Transport, cfg.Lines, cfg.Shift, cfg.Revision, cfg.Delay)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:  cfg,
		role: role,
		t:    t,
		sync: protocol.NewSynchronizer(cfg.Lines, role, cfg.Revision, cfg.Delay),
	}, nil
}

// State returns the current session state
func (s *session) State() SessionState {
	return SessionState(atomic.LoadUint32(&s.state))
}

// Handshake returns the current per-byte handshake sub-state
func (s *session) Handshake() protocol.HandshakeState {
	return s.sync.State()
}

func (s *session) setState(st SessionState) {
	if SessionState(atomic.SwapUint32(&s.state, uint32(st))) == st {
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SetState(s.role.String(), st)
	}
	if s.cfg.Log != nil {
		s.cfg.Log.Info().
			Str("session", s.cfg.SessionID).
			Str("role", s.role.String()).
			Str("state", st.String()).
			Msg("session state")
	}
}

func (s *session) sleep(d time.Duration) {
	s.cfg.Delay.Sleep(d)
}

// record counts a frame and hands it to the tracer
func (s *session) record(rec FrameRecord) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.AddFrame(s.role.String(), rec.Kind)
		if !rec.OK {
			s.cfg.Metrics.AddChecksumMismatch(s.role.String(), rec.Kind)
		}
	}
	if s.cfg.Log != nil {
		s.cfg.Log.Debug().
			Str("session", s.cfg.SessionID).
			Str("role", s.role.String()).
			Str("kind", rec.Kind).
			Str("name", rec.Name).
			Str("opcode", hexBytes(rec.Opcode)).
			Int("payload", len(rec.Payload)).
			Uint8("ack", rec.Ack).
			Msg("frame")
	}
	if s.cfg.Tracer == nil {
		return
	}
	rec.Session = s.cfg.SessionID
	rec.Role = s.role.String()
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	if err := s.cfg.Tracer.Record(rec); err != nil && s.cfg.Log != nil {
		s.cfg.Log.Error().Err(err).Msg("trace record failed")
	}
}

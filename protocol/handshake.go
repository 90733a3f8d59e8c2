package protocol

import (
	"context"
	"sync/atomic"
	"time"

	"lensbus/bus"
)

// HandshakeState is the per-byte handshake sub-state of one side
type HandshakeState uint32

const (
	HandshakeIdle HandshakeState = iota
	HandshakeSelfReady
	HandshakePeerReady
	HandshakeTransferring
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeSelfReady:
		return "self_ready"
	case HandshakePeerReady:
		return "peer_ready"
	case HandshakeTransferring:
		return "transferring"
	}
	return "idle"
}

// Synchronizer drives one side's handshake line and waits on the peer's.
// Each wait blocks until the peer line is observed in the wanted state;
// after driving its own line a side always waits for the peer before
// continuing, giving strict per-byte ping-pong flow control.
type Synchronizer struct {
	lines   bus.Lines
	own     bus.Line
	peer    bus.Line
	prePoll time.Duration
	delay   bus.Delayer
	state   uint32 // atomic HandshakeState
}

// NewSynchronizer creates the synchronizer for a role. The responder sleeps
// the revision's pre-poll delay before every wait so it never samples a
// line while it is still bouncing.
func NewSynchronizer(lines bus.Lines, role Role, rev Revision, delay bus.Delayer) *Synchronizer {
	if delay == nil {
		delay = bus.HostDelay{}
	}
	s := &Synchronizer{
		lines: lines,
		own:   bus.BodyAck,
		peer:  bus.LensAck,
		delay: delay,
	}
	if role == RoleResponder {
		s.own, s.peer = bus.LensAck, bus.BodyAck
		s.prePoll = rev.PrePollDelay
	}
	return s
}

// Configure makes the own handshake line an output driven low and drops
// any peer transitions left over from an earlier session
func (s *Synchronizer) Configure() error {
	if err := s.lines.SetDirection(s.peer, bus.Input); err != nil {
		return err
	}
	if err := bus.Resync(s.lines, s.peer); err != nil {
		return err
	}
	if err := s.lines.SetDirection(s.own, bus.Output); err != nil {
		return err
	}
	return s.lines.Set(s.own, false)
}

// Assert drives the own handshake line: high means ready, low means working
func (s *Synchronizer) Assert(ready bool) error {
	if ready {
		s.setState(HandshakeSelfReady)
	}
	return s.lines.Set(s.own, ready)
}

// WaitHigh blocks until the peer line is high
func (s *Synchronizer) WaitHigh(ctx context.Context) error {
	s.delay.Sleep(s.prePoll)
	return s.lines.WaitLevel(ctx, s.peer, true)
}

// WaitLow blocks until the peer line is low
func (s *Synchronizer) WaitLow(ctx context.Context) error {
	s.delay.Sleep(s.prePoll)
	return s.lines.WaitLevel(ctx, s.peer, false)
}

// WaitRise blocks until the peer line goes from low to high
func (s *Synchronizer) WaitRise(ctx context.Context) error {
	if err := s.WaitLow(ctx); err != nil {
		return err
	}
	return s.lines.WaitLevel(ctx, s.peer, true)
}

// WaitFall blocks until the peer line goes from high to low
func (s *Synchronizer) WaitFall(ctx context.Context) error {
	if err := s.WaitHigh(ctx); err != nil {
		return err
	}
	return s.lines.WaitLevel(ctx, s.peer, false)
}

// State returns the current handshake sub-state
func (s *Synchronizer) State() HandshakeState {
	return HandshakeState(atomic.LoadUint32(&s.state))
}

func (s *Synchronizer) setState(st HandshakeState) {
	atomic.StoreUint32(&s.state, uint32(st))
}

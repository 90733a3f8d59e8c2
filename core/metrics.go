package core

import (
	"strings"
	"sync"
)

// Frame kinds used in metrics and traces
const (
	KindCommand  = "command"
	KindResponse = "response"
	KindExtended = "extended"
	KindBlock    = "block"
	KindRaw      = "raw"
)

// Metrics receives link events from a session. A nil Metrics is valid.
type Metrics interface {
	AddFrame(role string, kind string)
	AddChecksumMismatch(role string, kind string)
	AddOverrun(role string)
	AddUnknownOpcode(op Opcode)
	SetState(role string, state SessionState)
}

// TeeMetrics forwards every event to each of its members
type TeeMetrics []Metrics

func (t TeeMetrics) AddFrame(role, kind string) {
	for _, m := range t {
		m.AddFrame(role, kind)
	}
}

func (t TeeMetrics) AddChecksumMismatch(role, kind string) {
	for _, m := range t {
		m.AddChecksumMismatch(role, kind)
	}
}

func (t TeeMetrics) AddOverrun(role string) {
	for _, m := range t {
		m.AddOverrun(role)
	}
}

func (t TeeMetrics) AddUnknownOpcode(op Opcode) {
	for _, m := range t {
		m.AddUnknownOpcode(op)
	}
}

func (t TeeMetrics) SetState(role string, state SessionState) {
	for _, m := range t {
		m.SetState(role, state)
	}
}

// Stats counts link events in memory
type Stats struct {
	mu                 sync.Mutex
	Frames             map[string]uint64
	ChecksumMismatches uint64
	Overruns           uint64
	UnknownOpcodes     uint64
	States             map[string]SessionState
}

// NewStats creates an empty statistics counter
func NewStats() *Stats {
	return &Stats{
		Frames: make(map[string]uint64),
		States: make(map[string]SessionState),
	}
}

func (s *Stats) AddFrame(role, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames[role+"/"+kind]++
}

func (s *Stats) AddChecksumMismatch(string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ChecksumMismatches++
}

func (s *Stats) AddOverrun(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Overruns++
}

func (s *Stats) AddUnknownOpcode(Opcode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UnknownOpcodes++
}

func (s *Stats) SetState(role string, state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.States[role] = state
}

// FrameCount returns the number of frames of a kind seen for a role
func (s *Stats) FrameCount(role, kind string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Frames[role+"/"+kind]
}

// State returns the last state reported for a role
func (s *Stats) State(role string) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.States[role]
}

func (s *Stats) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("frames:")
	for _, role := range []string{"body", "lens"} {
		for _, kind := range []string{KindCommand, KindResponse, KindExtended, KindBlock, KindRaw} {
			if n := s.Frames[role+"/"+kind]; n > 0 {
				sb.WriteString(" " + role + "/" + kind + "=" + itoa(int(n)))
			}
		}
	}
	sb.WriteString(" checksum_mismatches=" + itoa(int(s.ChecksumMismatches)))
	sb.WriteString(" overruns=" + itoa(int(s.Overruns)))
	sb.WriteString(" unknown_opcodes=" + itoa(int(s.UnknownOpcodes)))
	return sb.String()
}

package protocol

import (
	"errors"
	"strings"
	"time"
)

// TransportKind selects how bytes are shifted onto the wire
type TransportKind uint8

const (
	// BitBang toggles clock and data from software
	BitBang TransportKind = iota
	// ShiftRegister hands each byte to a shift-register peripheral
	ShiftRegister
)

func (k TransportKind) String() string {
	if k == ShiftRegister {
		return "shift"
	}
	return "bitbang"
}

// ParseTransportKind parses "bitbang" or "shift"
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(s) {
	case "bitbang", "bit-bang":
		return BitBang, nil
	case "shift", "shift-register", "spi":
		return ShiftRegister, nil
	}
	return 0, errors.New("unknown transport: " + s)
}

// Revision captures everything that differs between the two protocol
// generations. The state machines are shared; only these values change.
// Timing values were tuned against captured traces and are replayed as-is.
type Revision struct {
	Name string

	// LengthWidth is the size of a response length prefix in bytes (1 or 2)
	LengthWidth int

	// StandbyLength is the payload length of a standby response
	StandbyLength int

	// StandbyArg is the last byte of the standby command this revision sends
	StandbyArg byte

	// PrePollDelay is slept before every responder handshake poll
	PrePollDelay time.Duration

	// HalfBit is the bit-bang clock half period (~500 kHz)
	HalfBit time.Duration

	// WriteSettle is slept after the last bit of a bit-banged write
	WriteSettle time.Duration

	// ExtendedSettle separates the two stages of an extended frame
	ExtendedSettle time.Duration

	// ClockDrop is how long the initiator holds the clock low for a transport reset
	ClockDrop time.Duration

	// Transport is the default byte transport for this revision
	Transport TransportKind
}

// Legacy is the older, bit-banged protocol generation
var Legacy = Revision{
	Name:           "legacy",
	LengthWidth:    2,
	StandbyLength:  31,
	StandbyArg:     0x06,
	PrePollDelay:   0,
	HalfBit:        time.Microsecond,
	WriteSettle:    15 * time.Microsecond,
	ExtendedSettle: 250 * time.Microsecond,
	ClockDrop:      10 * time.Microsecond,
	Transport:      BitBang,
}

// Revised is the newer, shift-register-assisted protocol generation
var Revised = Revision{
	Name:           "revised",
	LengthWidth:    1,
	StandbyLength:  34,
	StandbyArg:     0x02,
	PrePollDelay:   2 * time.Microsecond,
	HalfBit:        time.Microsecond,
	WriteSettle:    0,
	ExtendedSettle: 250 * time.Microsecond,
	ClockDrop:      10 * time.Microsecond,
	Transport:      ShiftRegister,
}

// Revisions lists the known protocol generations
var Revisions = []Revision{Legacy, Revised}

// RevisionByName looks up a revision by name
func RevisionByName(name string) (Revision, error) {
	for _, r := range Revisions {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return Revision{}, errors.New("unknown protocol revision: " + name)
}

// StandbyCommand returns the standby poll command frame for this revision
func (r Revision) StandbyCommand() [CommandSize]byte {
	return [CommandSize]byte{0xC1, 0x80, 0x01, r.StandbyArg}
}

// MaxLength returns the largest payload the revision's length prefix can carry
func (r Revision) MaxLength() int {
	if r.LengthWidth == 1 {
		return 0xFF
	}
	return 0xFFFF
}

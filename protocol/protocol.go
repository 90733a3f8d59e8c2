// Package protocol implements the body/lens link protocol: byte transport,
// handshake synchronization, and command/response framing
package protocol

import "errors"

// Frame sizes
const (
	CommandSize  = 4  // Command frame: opcode + 2 argument bytes
	ExtendedSize = 17 // Two-stage frame buffer including both acks
	ExtendedHead = 4  // Bytes written in the first stage
	ExtendedBody = 11 // Bytes written in the second stage

	// Positions of the acks inside an extended frame buffer
	ExtendedAck1 = ExtendedHead
	ExtendedAck2 = ExtendedSize - 1
)

// Role is the side of the link a component plays
type Role uint8

const (
	// RoleInitiator drives the clock and starts transactions (the body)
	RoleInitiator Role = iota
	// RoleResponder reacts to the initiator's clock (the lens)
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "lens"
	}
	return "body"
}

var (
	// ErrResponseOverrun is returned with a zero count when a response advertises
	// more bytes than the caller's buffer holds
	ErrResponseOverrun = errors.New("protocol: response length exceeds buffer")
	// ErrPayloadTooLong is returned when a payload does not fit the revision's length prefix
	ErrPayloadTooLong = errors.New("protocol: payload too long for length prefix")
)

// Checksum returns the unsigned 8-bit sum of data
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

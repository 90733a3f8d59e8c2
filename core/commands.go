package core

import (
	"context"

	"lensbus/protocol"
)

// Observed opcodes, wire order
var (
	OpWake       = Opcode{0xB0, 0xF2, 0x00, 0x00}
	OpStatus     = Opcode{0xC0, 0xF6, 0x00, 0x00}
	OpMode       = Opcode{0xA0, 0xF5, 0x01, 0x00}
	OpDescriptor = Opcode{0xC1, 0xF9, 0x00, 0x00}
	OpStandbyA   = Opcode{0xC1, 0x80, 0x01, 0x02}
	OpStandbyB   = Opcode{0xC1, 0x80, 0x01, 0x06}
	OpLegacyMode = Opcode{0x60, 0xF0, 0x00, 0x00}
	OpFocusRing  = Opcode{0xA0, 0xB0, 0xFE, 0x00}
	OpDrive      = Opcode{0xB1, 0x88, 0x03, 0x02}

	PrefixAperture   = [2]byte{0x60, 0x80}
	PrefixLegacyMode = [2]byte{0x60, 0xF0}
	PrefixFocusRing  = [2]byte{0xA0, 0xB0}
	PrefixDrive      = [2]byte{0xB1, 0x88}
)

// WakeAnnounce is the raw byte the lens sends after acking the wake command
const WakeAnnounce = 0x00

// LegacyModeLength is the second-stage length of the legacy mode command
const LegacyModeLength = 6

// StatusPayload is the lens status response
var StatusPayload = []byte{0x00, 0x0A, 0x10, 0xC4, 0x09}

// DefaultDescriptor is the 21-byte lens descriptor response.
// Override it from configuration when a capture of the real lens is available.
var DefaultDescriptor = []byte{
	0x01, 0x00, 0x12, 0x00, 0x37, 0x00, 0x28,
	0x00, 0x16, 0x00, 0xB4, 0x00, 0x5A, 0x00,
	0x00, 0x01, 0x02, 0x03, 0x10, 0x20, 0x00,
}

// DescriptorLength is the fixed descriptor payload length
const DescriptorLength = 21

// NewLensTable builds the responder dispatch table for a revision
func NewLensTable(rev protocol.Revision, descriptor []byte) *CommandTable {
	if descriptor == nil {
		descriptor = DefaultDescriptor
	}
	standby := make([]byte, rev.StandbyLength)

	t := NewCommandTable()
	t.Register("wake", OpWake, func(ctx context.Context, r *protocol.Responder, _ Opcode) ([]byte, error) {
		return []byte{WakeAnnounce}, r.WriteRaw(ctx, WakeAnnounce)
	})
	t.Register("status", OpStatus, respond(StatusPayload))
	t.Register("mode", OpMode, func(ctx context.Context, r *protocol.Responder, _ Opcode) ([]byte, error) {
		// The body drops the clock after this ack
		return nil, r.ResetTransport(ctx)
	})
	t.Register("descriptor", OpDescriptor, respond(descriptor))
	t.Register("standby", OpStandbyA, respond(standby))
	t.Register("standby", OpStandbyB, respond(standby))
	t.RegisterPrefix("aperture", PrefixAperture, receive(protocol.ExtendedBody))
	t.RegisterPrefix("legacy_mode", PrefixLegacyMode, receive(LegacyModeLength))
	t.RegisterPrefix("focus_ring", PrefixFocusRing, nil)
	t.RegisterPrefix("drive", PrefixDrive, nil)
	return t
}

// respond answers with a length-prefixed payload
func respond(payload []byte) CommandHandler {
	return func(ctx context.Context, r *protocol.Responder, _ Opcode) ([]byte, error) {
		return payload, r.WriteBytesChecksum(ctx, payload)
	}
}

// receive reads the second stage of a two-stage command
func receive(n int) CommandHandler {
	return func(ctx context.Context, r *protocol.Responder, _ Opcode) ([]byte, error) {
		return r.ReadBytesChecksum(ctx, n)
	}
}

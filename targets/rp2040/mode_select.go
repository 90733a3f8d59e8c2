//go:build rp2040 || rp2350

package main

import "lensbus/protocol"

// ModeConfig determines which side of the link the board plays and how
type ModeConfig struct {
	Role      protocol.Role
	Revision  protocol.Revision
	Transport protocol.TransportKind
	Pins      PinMap
}

// GetMode returns the compile-time mode. The role comes from the build
// tag (see role_body.go and role_lens.go); the revision picks the board.
func GetMode() ModeConfig {
	rev := protocol.Revised
	pins := RevisedPins
	if legacyBoard {
		rev = protocol.Legacy
		pins = LegacyPins
	}
	return ModeConfig{
		Role:      role,
		Revision:  rev,
		Transport: rev.Transport,
		Pins:      pins,
	}
}

package core

import "time"

// Timing holds the fixed delays of a body session. They were measured on
// a real camera and are replayed, never computed.
type Timing struct {
	// WakeSettle separates raising power from asserting the body handshake
	WakeSettle time.Duration
	// BootSettle follows the lens wake pulse
	BootSettle time.Duration
	// CommandGap separates power-up commands
	CommandGap time.Duration
	// ShutterPulse is the width of the shutter stimulus pulse
	ShutterPulse time.Duration
	// FrameInterval precedes each shutter pulse
	FrameInterval time.Duration
	// ShutterToStandby separates the shutter pulse from the standby poll
	ShutterToStandby time.Duration
	// ShutterToParameter is used instead before a parameter change
	ShutterToParameter time.Duration
	// FocusInterval precedes each focus toggle
	FocusInterval time.Duration
	// LensWakePulse is how long the lens holds its handshake high on wake
	LensWakePulse time.Duration
	// StandbyPolls is the number of standby polls between parameter changes
	StandbyPolls int
}

// DefaultTiming is the timing captured from the camera
var DefaultTiming = Timing{
	WakeSettle:         10 * time.Millisecond,
	BootSettle:         20 * time.Millisecond,
	CommandGap:         time.Millisecond,
	ShutterPulse:       500 * time.Microsecond,
	FrameInterval:      9 * time.Millisecond,
	ShutterToStandby:   1500 * time.Microsecond,
	ShutterToParameter: 700 * time.Microsecond,
	FocusInterval:      4 * time.Millisecond,
	LensWakePulse:      10 * time.Millisecond,
	StandbyPolls:       4,
}

// withDefaults fills zero fields from DefaultTiming
func (t Timing) withDefaults() Timing {
	d := DefaultTiming
	if t.WakeSettle == 0 {
		t.WakeSettle = d.WakeSettle
	}
	if t.BootSettle == 0 {
		t.BootSettle = d.BootSettle
	}
	if t.CommandGap == 0 {
		t.CommandGap = d.CommandGap
	}
	if t.ShutterPulse == 0 {
		t.ShutterPulse = d.ShutterPulse
	}
	if t.FrameInterval == 0 {
		t.FrameInterval = d.FrameInterval
	}
	if t.ShutterToStandby == 0 {
		t.ShutterToStandby = d.ShutterToStandby
	}
	if t.ShutterToParameter == 0 {
		t.ShutterToParameter = d.ShutterToParameter
	}
	if t.FocusInterval == 0 {
		t.FocusInterval = d.FocusInterval
	}
	if t.LensWakePulse == 0 {
		t.LensWakePulse = d.LensWakePulse
	}
	if t.StandbyPolls == 0 {
		t.StandbyPolls = d.StandbyPolls
	}
	return t
}

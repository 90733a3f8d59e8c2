//go:build rp2040 || rp2350

package main

import (
	"context"
	"errors"
	"machine"
	"time"

	"lensbus/bus"
	"lensbus/core"
	"lensbus/protocol"
)

var (
	// Debug counters
	sessions  uint32
	busErrors uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitClock()

	mode := GetMode()
	diag := core.NewDiagnostics(mode.Role.String(), usbDebugWriter)
	diag.StartAsync(32)

	lines := NewPinLines(mode.Pins)
	var shift *PIOShift
	if mode.Transport == protocol.ShiftRegister {
		shift, err = NewPIOShift(mode.Role, mode.Pins, mode.Revision)
		if err != nil {
			fail()
		}
		lines.AttachShift(shift)
	}

	link := core.LinkConfig{
		Lines:     lines,
		Revision:  mode.Revision,
		Transport: mode.Transport,
		Delay:     hwDelay{},
		Diag:      diag,
		SessionID: "fw",
	}
	if shift != nil {
		link.Shift = shift
	}

	// Main loop. A session ends on power loss or a bus error; start over
	// after it, right away when the body only cycled power.
	for {
		powerCycle := func() bool {
			defer func() {
				if r := recover(); r != nil {
					busErrors++
					diag.Println("session panic")
				}
			}()

			sessions++
			err := runSession(context.Background(), mode, link)
			if errors.Is(err, core.ErrPowerLost) {
				return true
			}
			if err != nil {
				busErrors++
				diag.Println("session ended: " + err.Error())
			}
			return false
		}()

		if !powerCycle {
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func runSession(ctx context.Context, mode ModeConfig, link core.LinkConfig) error {
	if mode.Role == protocol.RoleResponder {
		lens, err := core.NewLens(core.LensConfig{LinkConfig: link})
		if err != nil {
			return err
		}
		return lens.Run(ctx)
	}

	body, err := core.NewBody(core.BodyConfig{LinkConfig: link})
	if err != nil {
		return err
	}
	return body.Run(ctx)
}

// fail flashes the LED forever
func fail() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}

var _ bus.Lines = (*PinLines)(nil)

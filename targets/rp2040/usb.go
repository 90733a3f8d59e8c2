//go:build rp2040 || rp2350

package main

import (
	"machine"
	"strconv"
)

// InitUSB initializes USB CDC serial. On RP2040 machine.Serial is USB CDC.
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{BaudRate: 115200})
}

// usbDebugWriter writes one diagnostic line stamped with the uptime
func usbDebugWriter(s string) {
	_, _ = machine.Serial.Write([]byte(strconv.FormatUint(sinceBoot(), 10) + " " + s + "\r\n"))
}

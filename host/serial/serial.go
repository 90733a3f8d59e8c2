// Package serial carries the diagnostic side channel over a serial port
package serial

import (
	"io"
	"sync"

	"lensbus/core"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - Mock serial (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate of the diagnostic console
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the diagnostic console configuration
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// DebugWriter returns a core.DebugWriter that sends each line to the port
// terminated by CR LF. Write errors are dropped; the side channel never
// stalls the bus.
func DebugWriter(p Port) core.DebugWriter {
	var mu sync.Mutex
	return func(s string) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = p.Write([]byte(s + "\r\n"))
	}
}

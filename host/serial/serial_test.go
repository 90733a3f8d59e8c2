package serial

import (
	"bytes"
	"testing"

	"lensbus/core"
)

type mockPort struct {
	bytes.Buffer
	closed bool
}

func (m *mockPort) Close() error {
	m.closed = true
	return nil
}

func (m *mockPort) Flush() error { return nil }

func TestDebugWriter(t *testing.T) {
	port := &mockPort{}
	diag := core.NewDiagnostics("lens", DebugWriter(port))

	diag.UnknownOpcode(core.Opcode{0xD2, 0x11, 0x00, 0x00})
	diag.Dump("status", []byte{0x00, 0x0A})

	want := "[lens] unknown opcode D2 11 00 00\r\n[lens] status (2): 00 0A\r\n"
	if got := port.String(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyUSB0")
	if cfg.Baud != 115200 {
		t.Errorf("Expected 115200 baud, got %d", cfg.Baud)
	}
	if cfg.Device != "/dev/ttyUSB0" {
		t.Errorf("Unexpected device %s", cfg.Device)
	}
}

func TestOpenRequiresConfig(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("Expected error for nil config")
	}
}

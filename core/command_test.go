package core

import (
	"context"
	"errors"
	"testing"

	"lensbus/protocol"
)

func TestCommandTable(t *testing.T) {
	table := NewCommandTable()

	var called bool
	handler := func(ctx context.Context, r *protocol.Responder, op Opcode) ([]byte, error) {
		called = true
		return []byte{op[2]}, nil
	}

	op := Opcode{0x12, 0x34, 0x56, 0x78}
	cmd := table.Register("test_command", op, handler)
	if cmd.Match != protocol.CommandSize {
		t.Errorf("Expected exact match width 4, got %d", cmd.Match)
	}

	got, ok := table.Lookup(op)
	if !ok {
		t.Fatal("Failed to look up registered command")
	}
	if got.Name != "test_command" {
		t.Errorf("Expected command name 'test_command', got '%s'", got.Name)
	}

	_, data, err := table.Dispatch(context.Background(), nil, op)
	if err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}
	if len(data) != 1 || data[0] != 0x56 {
		t.Errorf("Unexpected handler data % X", data)
	}

	_, _, err = table.Dispatch(context.Background(), nil, Opcode{0x12, 0x34, 0x56, 0x79})
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("Expected ErrUnknownOpcode, got %v", err)
	}
}

func TestCommandTablePrefix(t *testing.T) {
	table := NewCommandTable()
	table.RegisterPrefix("aperture", [2]byte{0x60, 0x80}, nil)
	table.Register("exact", Opcode{0x60, 0x80, 0x00, 0x00}, nil)

	cmd, ok := table.Lookup(Opcode{0x60, 0x80, 0xFE, 0x02})
	if !ok || cmd.Name != "aperture" {
		t.Errorf("Expected prefix match, got %v", cmd)
	}

	cmd, ok = table.Lookup(Opcode{0x60, 0x80, 0x00, 0x00})
	if !ok || cmd.Name != "exact" {
		t.Errorf("Expected exact entry to win over prefix, got %v", cmd)
	}

	if _, ok := table.Lookup(Opcode{0x60, 0x81, 0xFE, 0x02}); ok {
		t.Error("Prefix must compare both leading bytes")
	}

	cmd, data, err := table.Dispatch(context.Background(), nil, Opcode{0x60, 0x80, 0x04, 0xFE})
	if err != nil || cmd.Name != "aperture" || data != nil {
		t.Errorf("Nil handler should ack only: %v %v %v", cmd, data, err)
	}
}

func TestCommandTableOrder(t *testing.T) {
	table := NewCommandTable()
	table.Register("one", Opcode{1}, nil)
	table.Register("two", Opcode{2}, nil)
	table.Register("three", Opcode{3}, nil)
	table.Register("two_again", Opcode{2}, nil)

	if table.Count() != 3 {
		t.Errorf("Expected 3 commands, got %d", table.Count())
	}

	names := table.Names()
	want := []string{"one", "two_again", "three"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Name %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestLensTable(t *testing.T) {
	for _, rev := range protocol.Revisions {
		table := NewLensTable(rev, nil)

		for _, op := range []Opcode{OpWake, OpStatus, OpMode, OpDescriptor, OpStandbyA, OpStandbyB, OpLegacyMode, OpFocusRing, OpDrive} {
			if _, ok := table.Lookup(op); !ok {
				t.Errorf("%s: %s not registered", rev.Name, op)
			}
		}
		if _, ok := table.Lookup(rev.StandbyCommand()); !ok {
			t.Errorf("%s: standby command not registered", rev.Name)
		}
		if _, ok := table.Lookup(Opcode{0xFF, 0xFF, 0x00, 0x00}); ok {
			t.Errorf("%s: unexpected entry for FF FF", rev.Name)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	if s := OpWake.String(); s != "B0 F2 00 00" {
		t.Errorf("Unexpected opcode string %q", s)
	}
}

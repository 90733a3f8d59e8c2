//go:build rp2040 || rp2350

package main

import (
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"tinygo.org/x/drivers"

	"lensbus/bus"
	"lensbus/protocol"
)

// Bit rate of the shift register, matching the bit-banged half period
const shiftBaud = 500_000

// Master program: clock on side-set, idle high. Data changes while the
// clock is low and is sampled on the rising edge, LSB first. The stall
// waiting for the next byte holds the clock high.
//
//	.side_set 1
//	.wrap_target
//	    out x, 1      side 1
//	    mov pins, x   side 0 [1]
//	    in  pins, 1   side 1 [1]
//	.wrap
func masterProgram() []uint16 {
	return []uint16{
		pio.EncodeOut(pio.SrcDestX, 1) | pio.EncodeSideSet(1, 1),
		pio.EncodeMov(pio.SrcDestPins, pio.SrcDestX) | pio.EncodeSideSet(1, 0) | delayBits(1),
		pio.EncodeIn(pio.SrcDestPins, 1) | pio.EncodeSideSet(1, 1) | delayBits(1),
	}
}

// Slave program: follows the body's clock on an absolute GPIO.
//
//	.wrap_target
//	    wait 0 gpio clk
//	    out pins, 1
//	    wait 1 gpio clk
//	    in  pins, 1
//	.wrap
func slaveProgram(clk machine.Pin) []uint16 {
	return []uint16{
		pio.EncodeWaitGPIO(false, uint8(clk)),
		pio.EncodeOut(pio.SrcDestPins, 1),
		pio.EncodeWaitGPIO(true, uint8(clk)),
		pio.EncodeIn(pio.SrcDestPins, 1),
	}
}

// delayBits encodes a delay with one side-set bit in use
func delayBits(cycles uint8) uint16 {
	return uint16(cycles&0x0F) << 8
}

// PIOShift is an 8-bit LSB-first shift register on a PIO state machine
type PIOShift struct {
	sm     pio.StateMachine
	offset uint8
	master bool
	clk    machine.Pin
	data   machine.Pin
}

var (
	_ drivers.SPI  = (*PIOShift)(nil)
	_ bus.Resetter = (*PIOShift)(nil)
)

// NewPIOShift loads the program for the role on PIO0
func NewPIOShift(role protocol.Role, pins PinMap, rev protocol.Revision) (*PIOShift, error) {
	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		return nil, err
	}
	Pio := sm.PIO()

	s := &PIOShift{
		sm:     sm,
		master: role == protocol.RoleInitiator,
		clk:    pins[bus.Clock],
		data:   pins[bus.Data],
	}

	program := slaveProgram(s.clk)
	if s.master {
		program = masterProgram()
	}
	offset, err := Pio.AddProgram(program, -1)
	if err != nil {
		return nil, err
	}
	s.offset = offset

	cfg := pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset, offset+uint8(len(program))-1)
	cfg.SetOutPins(s.data, 1)
	cfg.SetInPins(s.data)
	cfg.SetOutShift(true, true, 8)
	cfg.SetInShift(true, true, 8)
	if s.master {
		cfg.SetSidesetParams(1, false, false)
		cfg.SetSidesetPins(s.clk)
		// Five state machine cycles per bit
		whole, frac, err := pio.ClkDivFromFrequency(shiftBaud*5, machine.CPUFrequency())
		if err != nil {
			return nil, err
		}
		cfg.SetClkDivIntFrac(whole, frac)
	}

	pinCfg := machine.PinConfig{Mode: Pio.PinMode()}
	s.data.Configure(pinCfg)
	if s.master {
		s.clk.Configure(pinCfg)
	}

	sm.Init(offset, cfg)
	if s.master {
		sm.SetPindirsConsecutive(s.clk, 1, true)
		sm.SetPinsConsecutive(s.clk, 1, true)
	}
	sm.SetPindirsConsecutive(s.data, 1, false)
	sm.SetEnabled(true)
	return s, nil
}

func (s *PIOShift) owns(line bus.Line) bool {
	return line == bus.Data || (s.master && line == bus.Clock)
}

func (s *PIOShift) setOutput(line bus.Line, out bool) {
	pin := s.data
	if line == bus.Clock {
		pin = s.clk
	}
	s.sm.SetPindirsConsecutive(pin, 1, out)
}

func (s *PIOShift) set(line bus.Line, high bool) {
	pin := s.data
	if line == bus.Clock {
		pin = s.clk
	}
	s.sm.SetPinsConsecutive(pin, 1, high)
}

// Transfer shifts one byte out and one byte in. It blocks until the
// byte is complete; for the slave that is when the body has clocked it.
func (s *PIOShift) Transfer(b byte) (byte, error) {
	for s.sm.IsTxFIFOFull() {
	}
	s.sm.TxPut(uint32(b))
	for s.sm.IsRxFIFOEmpty() {
	}
	// Shifted right into the top of the ISR
	return byte(s.sm.RxGet() >> 24), nil
}

// Tx transfers a buffer. Either w or r may be nil.
func (s *PIOShift) Tx(w, r []byte) error {
	n := len(w)
	if n == 0 {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		out := byte(0xFF)
		if w != nil {
			out = w[i]
		}
		in, err := s.Transfer(out)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}

// Reset discards a partially shifted byte and restarts the program
func (s *PIOShift) Reset() error {
	s.sm.SetEnabled(false)
	s.sm.ClearFIFOs()
	s.sm.Restart()
	s.sm.Exec(pio.EncodeJmp(s.offset, pio.JmpAlways))
	s.sm.SetEnabled(true)
	return nil
}

package sim

import (
	"sync"

	"lensbus/bus"
	"tinygo.org/x/drivers"
)

// ShiftRegister models the LSB-first, clock-idle-high, sample-on-rising
// shift-register peripheral. On the body port it is the clock master; on
// the lens port it shifts on the body's clock.
type ShiftRegister struct {
	port   *Port
	mu     sync.Mutex
	resets int
}

var (
	_ drivers.SPI  = (*ShiftRegister)(nil)
	_ bus.Resetter = (*ShiftRegister)(nil)
)

// ShiftRegister returns the port's shift-register peripheral. It shares the
// clock and data lines with the port; the data line is only driven while the
// port has it configured as an output.
func (p *Port) ShiftRegister() *ShiftRegister {
	return &ShiftRegister{port: p}
}

// Transfer shifts one byte out and one byte in, LSB first
func (s *ShiftRegister) Transfer(b byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port.side == Body {
		return s.master(b)
	}
	return s.slave(b)
}

// Tx transfers a buffer. Either w or r may be nil.
func (s *ShiftRegister) Tx(w, r []byte) error {
	n := len(w)
	if n == 0 {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		out := byte(0xff)
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

// Reset discards a partially shifted byte
func (s *ShiftRegister) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

// Resets returns how many times the peripheral was reset
func (s *ShiftRegister) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *ShiftRegister) drives() bool {
	return s.port.Direction(bus.Data) == bus.Output
}

func (s *ShiftRegister) master(b byte) (byte, error) {
	p := s.port
	drive := s.drives()
	var rx byte
	for i := 0; i < 8; i++ {
		if err := p.Set(bus.Clock, false); err != nil {
			return 0, err
		}
		if drive {
			if err := p.Set(bus.Data, b&0x01 != 0); err != nil {
				return 0, err
			}
		}
		if err := p.Set(bus.Clock, true); err != nil {
			return 0, err
		}
		rx >>= 1
		if v, err := p.Get(bus.Data); err != nil {
			return 0, err
		} else if v {
			rx |= 0x80
		}
		b >>= 1
	}
	return rx, nil
}

func (s *ShiftRegister) slave(b byte) (byte, error) {
	p := s.port
	ctx := p.wire.ctx
	drive := s.drives()
	var rx byte
	for i := 0; i < 8; i++ {
		if err := p.WaitLevel(ctx, bus.Clock, false); err != nil {
			return 0, bus.ErrClosed
		}
		if drive {
			if err := p.Set(bus.Data, b&0x01 != 0); err != nil {
				return 0, err
			}
		}
		if err := p.WaitLevel(ctx, bus.Clock, true); err != nil {
			return 0, bus.ErrClosed
		}
		rx >>= 1
		if v, err := p.Get(bus.Data); err != nil {
			return 0, err
		} else if v {
			rx |= 0x80
		}
		b >>= 1
	}
	return rx, nil
}

//go:build linux

// Package gpiochip drives the bus lines through a Linux GPIO character
// device. Peer handshake and clock lines are watched with edge events so
// short pulses are queued in order instead of being lost between polls.
package gpiochip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"lensbus/bus"
)

// Lines watched with edge events, per side
var (
	BodyWatch = []bus.Line{bus.LensAck}
	LensWatch = []bus.Line{bus.Clock, bus.BodyAck, bus.Power}
)

// PollInterval is how often unwatched lines are sampled by WaitLevel
const PollInterval = 20 * time.Microsecond

// Config selects the chip and the offset of each line
type Config struct {
	Chip     string
	Consumer string
	Offsets  map[bus.Line]int
	// Watch lists the lines delivered through edge events
	Watch []bus.Line
}

// Chip implements bus.Lines on a GPIO character device
type Chip struct {
	mu     sync.Mutex
	lines  [bus.NumLines]*gpiocdev.Line
	dir    [bus.NumLines]bus.Direction
	logs   [bus.NumLines]*bus.EdgeLog
	closed bool
}

var (
	_ bus.Lines    = (*Chip)(nil)
	_ bus.Resyncer = (*Chip)(nil)
)

// Open requests every configured line as an input
func Open(cfg Config) (*Chip, error) {
	consumer := cfg.Consumer
	if consumer == "" {
		consumer = "lensbus"
	}
	c := &Chip{}

	watched := make(map[bus.Line]bool, len(cfg.Watch))
	for _, l := range cfg.Watch {
		watched[l] = true
	}

	for line, offset := range cfg.Offsets {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(consumer)}
		if watched[line] {
			log := bus.NewEdgeLog(line.Idle())
			c.logs[line] = log
			opts = append(opts, gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				log.Push(evt.Type == gpiocdev.LineEventRisingEdge)
			}))
		}
		l, err := gpiocdev.RequestLine(cfg.Chip, offset, opts...)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to request %s (%s:%d): %w", line, cfg.Chip, offset, err)
		}
		c.lines[line] = l
	}

	for _, l := range cfg.Watch {
		if c.lines[l] == nil {
			c.Close()
			return nil, fmt.Errorf("watched line %s has no offset", l)
		}
		// Events only report changes; seed the log with the current level
		v, err := c.lines[l].Value()
		if err != nil {
			c.Close()
			return nil, err
		}
		if (v != 0) != l.Idle() {
			c.logs[l].Push(v != 0)
		}
	}
	return c, nil
}

func (c *Chip) line(l bus.Line) (*gpiocdev.Line, error) {
	if c.closed {
		return nil, bus.ErrClosed
	}
	if l >= bus.NumLines || c.lines[l] == nil {
		return nil, fmt.Errorf("gpiochip: line %s not configured", l)
	}
	return c.lines[l], nil
}

func (c *Chip) SetDirection(l bus.Line, dir bus.Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gl, err := c.line(l)
	if err != nil {
		return err
	}
	if c.logs[l] != nil && dir == bus.Output {
		return bus.ErrNotOwner
	}
	if c.dir[l] == dir {
		return nil
	}
	if dir == bus.Output {
		err = gl.Reconfigure(gpiocdev.AsOutput(level(l.Idle())))
	} else {
		err = gl.Reconfigure(gpiocdev.AsInput)
	}
	if err != nil {
		return err
	}
	c.dir[l] = dir
	return nil
}

func (c *Chip) Set(l bus.Line, high bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gl, err := c.line(l)
	if err != nil {
		return err
	}
	if c.dir[l] != bus.Output {
		return bus.ErrNotOutput
	}
	return gl.SetValue(level(high))
}

func (c *Chip) Get(l bus.Line) (bool, error) {
	c.mu.Lock()
	gl, err := c.line(l)
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	v, err := gl.Value()
	return v != 0, err
}

func (c *Chip) WaitLevel(ctx context.Context, l bus.Line, high bool) error {
	if l < bus.NumLines {
		if log := c.logs[l]; log != nil {
			return log.Wait(ctx, high)
		}
	}

	for {
		v, err := c.Get(l)
		if err != nil {
			return err
		}
		if v == high {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

// Resync drops queued edge events of a watched line. Unwatched lines are
// sampled directly and have nothing to drop.
func (c *Chip) Resync(l bus.Line) error {
	c.mu.Lock()
	_, err := c.line(l)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if log := c.logs[l]; log != nil {
		log.Resync()
	}
	return nil
}

// Close releases every requested line
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var first error
	for i, gl := range c.lines {
		if gl == nil {
			continue
		}
		if err := gl.Close(); err != nil && first == nil {
			first = err
		}
		c.lines[i] = nil
	}
	for _, log := range c.logs {
		if log != nil {
			log.Close()
		}
	}
	return first
}

func level(high bool) int {
	if high {
		return 1
	}
	return 0
}

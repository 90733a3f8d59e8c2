// Package config reads and writes the HCL configuration of a lensbus session
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/loopholelabs/logging/types"

	"lensbus/bus"
	"lensbus/core"
	"lensbus/protocol"
)

type Schema struct {
	Revision  string         `hcl:"revision,optional"`
	Transport string         `hcl:"transport,optional"`
	LogLevel  string         `hcl:"log_level,optional"`
	Body      *BodySchema    `hcl:"body,block"`
	Lens      *LensSchema    `hcl:"lens,block"`
	GPIO      *GPIOSchema    `hcl:"gpio,block"`
	Diag      *DiagSchema    `hcl:"diag,block"`
	Metrics   *MetricsSchema `hcl:"metrics,block"`
	Trace     *TraceSchema   `hcl:"trace,block"`
}

type BodySchema struct {
	Cycles             int    `hcl:"cycles,optional"`
	StandbyPolls       int    `hcl:"standby_polls,optional"`
	WakeSettle         string `hcl:"wake_settle,optional"`
	BootSettle         string `hcl:"boot_settle,optional"`
	CommandGap         string `hcl:"command_gap,optional"`
	ShutterPulse       string `hcl:"shutter_pulse,optional"`
	FrameInterval      string `hcl:"frame_interval,optional"`
	ShutterToStandby   string `hcl:"shutter_to_standby,optional"`
	ShutterToParameter string `hcl:"shutter_to_parameter,optional"`
	FocusInterval      string `hcl:"focus_interval,optional"`
}

type LensSchema struct {
	Descriptor string `hcl:"descriptor,optional"`
	WakePulse  string `hcl:"wake_pulse,optional"`
}

type GPIOSchema struct {
	Chip     string        `hcl:"chip,attr"`
	Consumer string        `hcl:"consumer,optional"`
	Line     []*LineSchema `hcl:"line,block"`
}

type LineSchema struct {
	Name   string `hcl:"name,label"`
	Offset int    `hcl:"offset,attr"`
}

type DiagSchema struct {
	Serial string `hcl:"serial,optional"`
	Baud   int    `hcl:"baud,optional"`
	Queue  int    `hcl:"queue,optional"`
}

type MetricsSchema struct {
	Addr string `hcl:"addr,attr"`
}

type TraceSchema struct {
	Path string `hcl:"path,attr"`
}

var (
	ErrDescriptorLength = errors.New("descriptor must be 21 bytes")
	ErrUnknownLogLevel  = errors.New("unknown log level")
)

// Default returns the configuration written by "config init"
func Default() *Schema {
	return &Schema{
		Revision: protocol.Revised.Name,
		LogLevel: "info",
		Body: &BodySchema{
			StandbyPolls:       core.DefaultTiming.StandbyPolls,
			WakeSettle:         core.DefaultTiming.WakeSettle.String(),
			BootSettle:         core.DefaultTiming.BootSettle.String(),
			CommandGap:         core.DefaultTiming.CommandGap.String(),
			ShutterPulse:       core.DefaultTiming.ShutterPulse.String(),
			FrameInterval:      core.DefaultTiming.FrameInterval.String(),
			ShutterToStandby:   core.DefaultTiming.ShutterToStandby.String(),
			ShutterToParameter: core.DefaultTiming.ShutterToParameter.String(),
			FocusInterval:      core.DefaultTiming.FocusInterval.String(),
		},
		Lens: &LensSchema{
			Descriptor: strings.ToUpper(hex.EncodeToString(core.DefaultDescriptor)),
			WakePulse:  core.DefaultTiming.LensWakePulse.String(),
		},
		GPIO: &GPIOSchema{
			Chip:     "gpiochip0",
			Consumer: "lensbus",
			Line: []*LineSchema{
				{Name: bus.Clock.String(), Offset: 17},
				{Name: bus.Data.String(), Offset: 27},
				{Name: bus.BodyAck.String(), Offset: 22},
				{Name: bus.LensAck.String(), Offset: 23},
				{Name: bus.Power.String(), Offset: 24},
				{Name: bus.Focus.String(), Offset: 5},
				{Name: bus.Shutter.String(), Offset: 6},
			},
		},
		Diag: &DiagSchema{Baud: 115200, Queue: 64},
	}
}

func ReadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	s := new(Schema)
	return s, s.Decode(data)
}

func (s *Schema) Decode(data []byte) error {
	file, diag := hclsyntax.ParseConfig(data, "", hcl.Pos{Line: 1, Column: 1})
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	diag = gohcl.DecodeBody(file.Body, nil, s)
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	return nil
}

func (s *Schema) Encode() ([]byte, error) {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(s, f.Body())
	return f.Bytes(), nil
}

// ProtocolRevision resolves the configured revision, Revised when unset
func (s *Schema) ProtocolRevision() (protocol.Revision, error) {
	if s.Revision == "" {
		return protocol.Revised, nil
	}
	return protocol.RevisionByName(s.Revision)
}

// TransportKind resolves the configured transport. When unset the
// revision's native transport is used.
func (s *Schema) TransportKind(rev protocol.Revision) (protocol.TransportKind, error) {
	if s.Transport == "" {
		return rev.Transport, nil
	}
	return protocol.ParseTransportKind(s.Transport)
}

// Level resolves the configured log level
func (s *Schema) Level() (types.Level, error) {
	return ParseLevel(s.LogLevel)
}

// ParseLevel maps a level name to a logging level. The empty name is info.
func ParseLevel(name string) (types.Level, error) {
	switch strings.ToLower(name) {
	case "trace":
		return types.TraceLevel, nil
	case "debug":
		return types.DebugLevel, nil
	case "", "info":
		return types.InfoLevel, nil
	case "warn", "warning":
		return types.WarnLevel, nil
	case "error":
		return types.ErrorLevel, nil
	}
	return types.InfoLevel, fmt.Errorf("%w: %s", ErrUnknownLogLevel, name)
}

// Timing converts the body block to session timing. Unset fields keep
// their default.
func (b *BodySchema) Timing() (core.Timing, error) {
	var t core.Timing
	if b == nil {
		return t, nil
	}
	t.StandbyPolls = b.StandbyPolls

	fields := []struct {
		name string
		val  string
		dst  *time.Duration
	}{
		{"wake_settle", b.WakeSettle, &t.WakeSettle},
		{"boot_settle", b.BootSettle, &t.BootSettle},
		{"command_gap", b.CommandGap, &t.CommandGap},
		{"shutter_pulse", b.ShutterPulse, &t.ShutterPulse},
		{"frame_interval", b.FrameInterval, &t.FrameInterval},
		{"shutter_to_standby", b.ShutterToStandby, &t.ShutterToStandby},
		{"shutter_to_parameter", b.ShutterToParameter, &t.ShutterToParameter},
		{"focus_interval", b.FocusInterval, &t.FocusInterval},
	}
	for _, f := range fields {
		if f.val == "" {
			continue
		}
		d, err := time.ParseDuration(f.val)
		if err != nil {
			return t, fmt.Errorf("body.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return t, nil
}

// DescriptorBytes decodes the descriptor override. Whitespace between
// hex pairs is ignored. A nil result means the built-in descriptor.
func (l *LensSchema) DescriptorBytes() ([]byte, error) {
	if l == nil || l.Descriptor == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(strings.Join(strings.Fields(l.Descriptor), ""))
	if err != nil {
		return nil, fmt.Errorf("lens.descriptor: %w", err)
	}
	if len(data) != core.DescriptorLength {
		return nil, fmt.Errorf("%w, got %d", ErrDescriptorLength, len(data))
	}
	return data, nil
}

// WakePulseDuration returns the lens wake pulse, zero when unset
func (l *LensSchema) WakePulseDuration() (time.Duration, error) {
	if l == nil || l.WakePulse == "" {
		return 0, nil
	}
	return time.ParseDuration(l.WakePulse)
}

// Offsets maps every configured line to its chip offset
func (g *GPIOSchema) Offsets() (map[bus.Line]int, error) {
	offsets := make(map[bus.Line]int, len(g.Line))
	for _, l := range g.Line {
		line, err := bus.ParseLine(l.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := offsets[line]; dup {
			return nil, fmt.Errorf("gpio: line %s configured twice", l.Name)
		}
		offsets[line] = l.Offset
	}
	return offsets, nil
}

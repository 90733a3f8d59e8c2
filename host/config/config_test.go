package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopholelabs/logging/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lensbus/bus"
	"lensbus/core"
	"lensbus/protocol"
)

const sample = `
revision  = "legacy"
log_level = "debug"

body {
  cycles         = 3
  frame_interval = "12ms"
  standby_polls  = 2
}

lens {
  descriptor = "01 02 03 04 05 06 07 08 09 0A 0B 0C 0D 0E 0F 10 11 12 13 14 15"
}

gpio {
  chip = "gpiochip4"

  line "clock" {
    offset = 3
  }
  line "data" {
    offset = 4
  }
}

metrics {
  addr = ":9109"
}
`

func TestDecode(t *testing.T) {
	s := new(Schema)
	require.NoError(t, s.Decode([]byte(sample)))

	rev, err := s.ProtocolRevision()
	require.NoError(t, err)
	assert.Equal(t, protocol.Legacy.Name, rev.Name)

	kind, err := s.TransportKind(rev)
	require.NoError(t, err)
	assert.Equal(t, protocol.BitBang, kind)

	level, err := s.Level()
	require.NoError(t, err)
	assert.Equal(t, types.DebugLevel, level)

	timing, err := s.Body.Timing()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Millisecond, timing.FrameInterval)
	assert.Equal(t, 2, timing.StandbyPolls)
	assert.Zero(t, timing.WakeSettle)
	assert.Equal(t, 3, s.Body.Cycles)

	desc, err := s.Lens.DescriptorBytes()
	require.NoError(t, err)
	require.Len(t, desc, core.DescriptorLength)
	assert.Equal(t, byte(0x15), desc[20])

	offsets, err := s.GPIO.Offsets()
	require.NoError(t, err)
	assert.Equal(t, map[bus.Line]int{bus.Clock: 3, bus.Data: 4}, offsets)
	assert.Equal(t, "gpiochip4", s.GPIO.Chip)

	require.NotNil(t, s.Metrics)
	assert.Equal(t, ":9109", s.Metrics.Addr)
	assert.Nil(t, s.Trace)
	assert.Nil(t, s.Diag)
}

func TestDefaultRoundTrip(t *testing.T) {
	data, err := Default().Encode()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "lensbus.hcl")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s, err := ReadSchema(path)
	require.NoError(t, err)

	rev, err := s.ProtocolRevision()
	require.NoError(t, err)
	assert.Equal(t, protocol.Revised.Name, rev.Name)

	timing, err := s.Body.Timing()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultTiming.FrameInterval, timing.FrameInterval)
	assert.Equal(t, core.DefaultTiming.ShutterToParameter, timing.ShutterToParameter)

	desc, err := s.Lens.DescriptorBytes()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultDescriptor, desc)

	pulse, err := s.Lens.WakePulseDuration()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultTiming.LensWakePulse, pulse)

	offsets, err := s.GPIO.Offsets()
	require.NoError(t, err)
	assert.Len(t, offsets, int(bus.NumLines))
}

func TestInvalid(t *testing.T) {
	s := new(Schema)
	assert.Error(t, s.Decode([]byte(`revision = `)))

	s = &Schema{Revision: "future"}
	_, err := s.ProtocolRevision()
	assert.Error(t, err)

	_, err = ParseLevel("loud")
	assert.ErrorIs(t, err, ErrUnknownLogLevel)

	_, err = (&LensSchema{Descriptor: "01 02"}).DescriptorBytes()
	assert.ErrorIs(t, err, ErrDescriptorLength)

	_, err = (&LensSchema{Descriptor: "zz"}).DescriptorBytes()
	assert.Error(t, err)

	_, err = (&BodySchema{FrameInterval: "soon"}).Timing()
	assert.Error(t, err)

	_, err = (&GPIOSchema{Line: []*LineSchema{{Name: "clock"}, {Name: "clock"}}}).Offsets()
	assert.Error(t, err)

	_, err = (&GPIOSchema{Line: []*LineSchema{{Name: "iris"}}}).Offsets()
	assert.Error(t, err)
}

func TestNilBlocks(t *testing.T) {
	var b *BodySchema
	timing, err := b.Timing()
	require.NoError(t, err)
	assert.Equal(t, core.Timing{}, timing)

	var l *LensSchema
	desc, err := l.DescriptorBytes()
	require.NoError(t, err)
	assert.Nil(t, desc)
}

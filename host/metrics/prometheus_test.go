package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lensbus/core"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := New(reg, nil)

	met.AddFrame("body", core.KindCommand)
	met.AddFrame("body", core.KindCommand)
	met.AddFrame("lens", core.KindCommand)
	met.AddChecksumMismatch("body", core.KindResponse)
	met.AddOverrun("body")
	met.AddUnknownOpcode(core.Opcode{0xD2, 0x11, 0x00, 0x00})
	met.AddUnknownOpcode(core.Opcode{0xD2, 0x11, 0x05, 0x00})
	met.SetState("lens", core.StateAwaitingCommand)

	assert.Equal(t, 2.0, testutil.ToFloat64(met.linkFrames.WithLabelValues("body", core.KindCommand)))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.linkFrames.WithLabelValues("lens", core.KindCommand)))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.linkChecksumMismatches.WithLabelValues("body", core.KindResponse)))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.linkOverruns.WithLabelValues("body")))
	assert.Equal(t, 2.0, testutil.ToFloat64(met.unmodeledOpcodes.WithLabelValues("D2 11")))
	assert.Equal(t, float64(core.StateAwaitingCommand), testutil.ToFloat64(met.sessionState.WithLabelValues("lens")))

	expected := `
# HELP lensbus_link_overruns Responses longer than the read buffer
# TYPE lensbus_link_overruns counter
lensbus_link_overruns{role="body"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "lensbus_link_overruns"))
}

func TestMetricsTee(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := core.NewStats()
	tee := core.TeeMetrics{New(reg, DefaultConfig()), stats}

	tee.AddFrame("body", core.KindExtended)
	tee.SetState("body", core.StateCommanding)

	assert.Equal(t, uint64(1), stats.FrameCount("body", core.KindExtended))
	assert.Equal(t, core.StateCommanding, stats.State("body"))

	n, err := testutil.GatherAndCount(reg, "lensbus_link_frames")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loopholelabs/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lensbus/core"
	"lensbus/host/config"
	"lensbus/host/trace"
	"lensbus/protocol"
)

func testApp(t *testing.T, rev protocol.Revision, kind protocol.TransportKind, traceTo io.Writer) *app {
	t.Helper()
	stats := core.NewStats()
	rt := &app{
		conf:      config.Default(),
		log:       logging.New(logging.Zerolog, "lensbus.test", io.Discard),
		revision:  rev,
		transport: kind,
		stats:     stats,
		metrics:   stats,
		diag:      core.NewDiagnostics("sim", core.WriterDebug(io.Discard)),
	}
	if traceTo != nil {
		rt.tracer = trace.NewRecorder(traceTo)
	}
	return rt
}

func TestSimulate(t *testing.T) {
	for _, rev := range []protocol.Revision{protocol.Legacy, protocol.Revised} {
		for _, kind := range []protocol.TransportKind{protocol.BitBang, protocol.ShiftRegister} {
			t.Run(rev.Name+"/"+kind.String(), func(t *testing.T) {
				var buf bytes.Buffer
				rt := testApp(t, rev, kind, &buf)

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				require.NoError(t, simulate(ctx, rt, "test", 1, 2))

				assert.Equal(t, uint64(0), rt.stats.ChecksumMismatches)
				assert.Equal(t, uint64(0), rt.stats.UnknownOpcodes)
				assert.Equal(t, uint64(2), rt.stats.FrameCount("body", core.KindExtended))
				assert.Equal(t, rt.stats.FrameCount("body", core.KindCommand)+rt.stats.FrameCount("body", core.KindExtended),
					rt.stats.FrameCount("lens", core.KindCommand))
				assert.Equal(t, core.StateOff, rt.stats.State("body"))

				recs, err := trace.ReadAll(&buf)
				require.NoError(t, err)
				assert.Equal(t, rt.tracer.Count(), len(recs))
				for _, rec := range recs {
					assert.Equal(t, "test", rec.Session)
				}
			})
		}
	}
}

func TestSimulateCancelled(t *testing.T) {
	rt := testApp(t, protocol.Revised, protocol.BitBang, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- simulate(ctx, rt, "test", 0, 1)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("simulate did not stop")
	}
}

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--version"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, Execute())
	assert.Equal(t, "lensbus version 0.1.0\n", out.String())
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lensbus.hcl")
	data, err := config.Default().Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	confPath, revisionName, transportName, tracePath = path, "legacy", "shift", filepath.Join(dir, "out.trace")
	defer func() {
		confPath, revisionName, transportName, tracePath = "", "", "", ""
	}()

	conf, err := loadConfig()
	require.NoError(t, err)
	rev, err := conf.ProtocolRevision()
	require.NoError(t, err)
	assert.Equal(t, protocol.Legacy.Name, rev.Name)
	kind, err := conf.TransportKind(rev)
	require.NoError(t, err)
	assert.Equal(t, protocol.ShiftRegister, kind)
	require.NotNil(t, conf.Trace)
	assert.Equal(t, tracePath, conf.Trace.Path)
}

func TestConfigInit(t *testing.T) {
	var out bytes.Buffer
	cmdConfigInit.SetOut(&out)
	require.NoError(t, runConfigInit(cmdConfigInit, nil))

	conf := new(config.Schema)
	require.NoError(t, conf.Decode(out.Bytes()))
	assert.Equal(t, protocol.Revised.Name, conf.Revision)
}

func TestTraceDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.trace")
	f, err := os.Create(path)
	require.NoError(t, err)
	rec := trace.NewRecorder(f)
	require.NoError(t, rec.Record(core.FrameRecord{
		Time:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Role:   "body",
		Kind:   core.KindCommand,
		Name:   "standby",
		Opcode: []byte{0xB0, 0xF2, 0x00, 0x00},
		OK:     true,
	}))
	require.NoError(t, f.Close())

	var out, errOut bytes.Buffer
	cmdTraceDump.SetOut(&out)
	cmdTraceDump.SetErr(&errOut)
	require.NoError(t, runTraceDump(cmdTraceDump, []string{path}))
	assert.Contains(t, out.String(), "standby")
	assert.Equal(t, "1 frames\n", errOut.String())
}

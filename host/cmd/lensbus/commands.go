package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"lensbus/core"
	"lensbus/host/config"
	"lensbus/host/metrics"
	"lensbus/host/serial"
	"lensbus/host/trace"
	"lensbus/protocol"
)

var (
	rootCmd = &cobra.Command{
		Use:   "lensbus",
		Short: "Camera body and lens serial bus emulator",
		Long: `lensbus emulates either end of the body/lens serial link.

Run "body" or "lens" against real lines through a GPIO character device,
or "sim" to run both ends against each other in memory.`,
		Version:       "0.1.0",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

var (
	confPath      string
	logLevel      string
	revisionName  string
	transportName string
	metricsAddr   string
	tracePath     string
	diagSerial    string
	realtime      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&confPath, "config", "c", "", "Configuration file (defaults built in)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&revisionName, "revision", "r", "", "Protocol revision: legacy or revised")
	rootCmd.PersistentFlags().StringVarP(&transportName, "transport", "t", "", "Byte transport: bitbang or shift")
	rootCmd.PersistentFlags().StringVarP(&metricsAddr, "metrics", "m", "", "Prom metrics address")
	rootCmd.PersistentFlags().StringVar(&tracePath, "trace", "", "Write a frame trace to this file")
	rootCmd.PersistentFlags().StringVar(&diagSerial, "diag-serial", "", "Send diagnostics to this serial device instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&realtime, "realtime", false, "Lock process memory to avoid page faults mid-frame")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration file and applies flag overrides
func loadConfig() (*config.Schema, error) {
	conf := config.Default()
	if confPath != "" {
		var err error
		conf, err = config.ReadSchema(confPath)
		if err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		conf.LogLevel = logLevel
	}
	if revisionName != "" {
		conf.Revision = revisionName
	}
	if transportName != "" {
		conf.Transport = transportName
	}
	if metricsAddr != "" {
		conf.Metrics = &config.MetricsSchema{Addr: metricsAddr}
	}
	if tracePath != "" {
		conf.Trace = &config.TraceSchema{Path: tracePath}
	}
	if diagSerial != "" {
		if conf.Diag == nil {
			conf.Diag = &config.DiagSchema{}
		}
		conf.Diag.Serial = diagSerial
	}
	return conf, nil
}

// app is everything a session needs besides its lines
type app struct {
	conf      *config.Schema
	log       types.RootLogger
	revision  protocol.Revision
	transport protocol.TransportKind
	stats     *core.Stats
	metrics   core.Metrics
	diag      *core.Diagnostics
	tracer    *trace.Recorder

	closers []io.Closer
}

func newApp(name string) (*app, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level, err := conf.Level()
	if err != nil {
		return nil, err
	}
	rev, err := conf.ProtocolRevision()
	if err != nil {
		return nil, err
	}
	kind, err := conf.TransportKind(rev)
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Zerolog, "lensbus."+name, os.Stderr)
	log.SetLevel(level)

	if realtime {
		if err := lockMemory(); err != nil {
			log.Warn().Err(err).Msg("could not lock memory")
		}
	}

	rt := &app{
		conf:      conf,
		log:       log,
		revision:  rev,
		transport: kind,
		stats:     core.NewStats(),
	}
	rt.metrics = rt.stats

	if conf.Metrics != nil && conf.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		prom := metrics.New(reg, metrics.DefaultConfig())
		rt.metrics = core.TeeMetrics{rt.stats, prom}

		// Add the default go metrics
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			reg,
			promhttp.HandlerOpts{
				Registry: reg,
			},
		))
		addr := conf.Metrics.Addr
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
			}
		}()
		log.Info().Str("addr", addr).Msg("serving metrics")
	}

	if err := rt.openDiag(name); err != nil {
		rt.Close()
		return nil, err
	}

	if conf.Trace != nil && conf.Trace.Path != "" {
		f, err := os.Create(conf.Trace.Path)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to create trace: %w", err)
		}
		rt.closers = append(rt.closers, f)
		rt.tracer = trace.NewRecorder(f)
	}

	log.Info().
		Str("revision", rev.Name).
		Str("transport", kind.String()).
		Msg("starting")
	return rt, nil
}

func (rt *app) openDiag(prefix string) error {
	d := rt.conf.Diag
	if d == nil {
		d = &config.DiagSchema{}
	}
	writer := core.WriterDebug(os.Stderr)
	if d.Serial != "" {
		cfg := serial.DefaultConfig(d.Serial)
		if d.Baud != 0 {
			cfg.Baud = d.Baud
		}
		port, err := serial.Open(cfg)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, port)
		writer = serial.DebugWriter(port)
	}
	rt.diag = core.NewDiagnostics(prefix, writer)
	if d.Queue > 0 {
		rt.diag.StartAsync(d.Queue)
	}
	return nil
}

// link builds the role-independent part of a session's wiring
func (rt *app) link(sessionID string) core.LinkConfig {
	cfg := core.LinkConfig{
		Revision:  rt.revision,
		Transport: rt.transport,
		Log:       rt.log,
		Diag:      rt.diag,
		Metrics:   rt.metrics,
		SessionID: sessionID,
	}
	// A nil *Recorder must not become a non-nil Tracer
	if rt.tracer != nil {
		cfg.Tracer = rt.tracer
	}
	return cfg
}

func (rt *app) bodyConfig(link core.LinkConfig, cycles int) (core.BodyConfig, error) {
	timing, err := rt.conf.Body.Timing()
	if err != nil {
		return core.BodyConfig{}, err
	}
	if cycles == 0 && rt.conf.Body != nil {
		cycles = rt.conf.Body.Cycles
	}
	return core.BodyConfig{LinkConfig: link, Timing: timing, Cycles: cycles}, nil
}

func (rt *app) lensConfig(link core.LinkConfig) (core.LensConfig, error) {
	descriptor, err := rt.conf.Lens.DescriptorBytes()
	if err != nil {
		return core.LensConfig{}, err
	}
	pulse, err := rt.conf.Lens.WakePulseDuration()
	if err != nil {
		return core.LensConfig{}, err
	}
	return core.LensConfig{LinkConfig: link, Descriptor: descriptor, WakePulse: pulse}, nil
}

// report logs the session totals
func (rt *app) report() {
	rt.log.Info().Msg(rt.stats.String())
	if rt.tracer != nil {
		rt.log.Info().Int("frames", rt.tracer.Count()).Msg("trace written")
	}
}

func (rt *app) Close() {
	if rt.diag != nil {
		rt.diag.Close()
		if n := rt.diag.Dropped(); n > 0 {
			rt.log.Warn().Uint32("dropped", n).Msg("diagnostics dropped")
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
}

// signalContext is cancelled on interrupt or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ended reports whether err is a normal end of session
func ended(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

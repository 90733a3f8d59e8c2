// Package metrics exports link counters from a session to Prometheus
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"lensbus/core"
)

type MetricsConfig struct {
	Namespace    string
	SubLink      string
	SubSession   string
	SubUnmodeled string
}

func DefaultConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:    "lensbus",
		SubLink:      "link",
		SubSession:   "session",
		SubUnmodeled: "unmodeled",
	}
}

// Metrics implements core.Metrics on a Prometheus registry
type Metrics struct {
	config *MetricsConfig

	// link
	linkFrames             *prometheus.CounterVec
	linkChecksumMismatches *prometheus.CounterVec
	linkOverruns           *prometheus.CounterVec

	// session
	sessionState *prometheus.GaugeVec

	// unmodeled
	unmodeledOpcodes *prometheus.CounterVec
}

var _ core.Metrics = (*Metrics)(nil)

func New(reg prometheus.Registerer, config *MetricsConfig) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	met := &Metrics{
		config: config,
		// Link
		linkFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubLink, Name: "frames", Help: "Frames exchanged"}, []string{"role", "kind"}),
		linkChecksumMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubLink, Name: "checksum_mismatches", Help: "Frames whose checksum did not match"}, []string{"role", "kind"}),
		linkOverruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubLink, Name: "overruns", Help: "Responses longer than the read buffer"}, []string{"role"}),

		// Session
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: config.SubSession, Name: "state", Help: "Current session state"}, []string{"role"}),

		// Unmodeled
		unmodeledOpcodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubUnmodeled, Name: "opcodes", Help: "Commands with no dispatch entry"}, []string{"prefix"}),
	}

	reg.MustRegister(met.linkFrames, met.linkChecksumMismatches, met.linkOverruns)
	reg.MustRegister(met.sessionState)
	reg.MustRegister(met.unmodeledOpcodes)

	return met
}

func (m *Metrics) AddFrame(role, kind string) {
	m.linkFrames.WithLabelValues(role, kind).Inc()
}

func (m *Metrics) AddChecksumMismatch(role, kind string) {
	m.linkChecksumMismatches.WithLabelValues(role, kind).Inc()
}

func (m *Metrics) AddOverrun(role string) {
	m.linkOverruns.WithLabelValues(role).Inc()
}

// AddUnknownOpcode is labelled by the two leading opcode bytes only, which
// keeps the label set bounded
func (m *Metrics) AddUnknownOpcode(op core.Opcode) {
	m.unmodeledOpcodes.WithLabelValues(fmt.Sprintf("%02X %02X", op[0], op[1])).Inc()
}

func (m *Metrics) SetState(role string, state core.SessionState) {
	m.sessionState.WithLabelValues(role).Set(float64(state))
}

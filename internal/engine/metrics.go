package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the ambient turn/tool/adapter instrumentation the Engine
// emits per §5's ordering guarantees (turn-level observability was implied
// but not spelled out as a type — see SPEC_FULL.md "SUPPLEMENTED FEATURES").
// A nil *Metrics is safe to use everywhere; every method no-ops.
type Metrics struct {
	turnsTotal        *prometheus.CounterVec
	turnDuration      *prometheus.HistogramVec
	loopIterations    prometheus.Histogram
	toolCallsTotal    *prometheus.CounterVec
	adapterCallsTotal *prometheus.CounterVec
	compressionTotal  prometheus.Counter
}

// NewMetrics registers the Engine's Prometheus collectors against reg. Pass
// a fresh prometheus.NewRegistry() in tests to avoid cross-test collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amritacore",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Total chat turns by terminal outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "amritacore",
			Subsystem: "engine",
			Name:      "turn_duration_seconds",
			Help:      "Wall-clock duration of a completed chat turn.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		loopIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "amritacore",
			Subsystem: "engine",
			Name:      "loop_iterations",
			Help:      "Agent-loop iterations per turn.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amritacore",
			Subsystem: "engine",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		adapterCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amritacore",
			Subsystem: "engine",
			Name:      "adapter_calls_total",
			Help:      "Model-adapter calls by protocol and outcome.",
		}, []string{"protocol", "outcome"}),
		compressionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "amritacore",
			Subsystem: "engine",
			Name:      "memory_compressions_total",
			Help:      "Memory-compression triggers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.turnsTotal, m.turnDuration, m.loopIterations, m.toolCallsTotal, m.adapterCallsTotal, m.compressionTotal)
	}
	return m
}

func (m *Metrics) observeTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) observeIterations(n int) {
	if m == nil {
		return
	}
	m.loopIterations.Observe(float64(n))
}

func (m *Metrics) observeToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) observeAdapterCall(protocol, outcome string) {
	if m == nil {
		return
	}
	m.adapterCallsTotal.WithLabelValues(protocol, outcome).Inc()
}

func (m *Metrics) observeCompression() {
	if m == nil {
		return
	}
	m.compressionTotal.Inc()
}

// Package metrics exposes the Prometheus collectors for the assistant core.
//
// *Metrics satisfies intent.Recorder, nlp.LatencyObserver and
// executor.Recorder, so one value is handed to every component.  All methods
// are nil-safe.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hearth"

// Metrics holds the collectors.
type Metrics struct {
	parserResults   *prometheus.CounterVec
	parserFallbacks *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	modelLatency    prometheus.Histogram
}

// MustNew creates the collectors and registers them with reg (the default
// registerer when nil).  Collectors already registered under the same name
// are reused; any other registration error panics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		parserResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parser_results_total",
			Help:      "Intents produced, by parser strategy and intent kind.",
		}, []string{"strategy", "kind"}),
		parserFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parser_fallbacks_total",
			Help:      "Messages routed to the deterministic parser, by reason.",
		}, []string{"reason"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmation gate outcomes (requested, confirmed, cancelled, or the rejection reason).",
		}, []string{"outcome"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executor calls, by tool and status.",
		}, []string{"tool", "status"}),
		modelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_seconds",
			Help:      "Round-trip time of successful completion calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),
	}

	m.parserResults = register(reg, m.parserResults)
	m.parserFallbacks = register(reg, m.parserFallbacks)
	m.confirmations = register(reg, m.confirmations)
	m.toolCalls = register(reg, m.toolCalls)
	m.modelLatency = register(reg, m.modelLatency)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ParserResult implements intent.Recorder.
func (m *Metrics) ParserResult(strategy, kind string) {
	if m == nil {
		return
	}
	m.parserResults.WithLabelValues(strategy, kind).Inc()
}

// ParserFallback implements intent.Recorder.
func (m *Metrics) ParserFallback(reason string) {
	if m == nil {
		return
	}
	m.parserFallbacks.WithLabelValues(reason).Inc()
}

// ModelLatency implements nlp.LatencyObserver.
func (m *Metrics) ModelLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.modelLatency.Observe(d.Seconds())
}

// ToolCall implements executor.Recorder.
func (m *Metrics) ToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// Confirmation implements executor.Recorder.
func (m *Metrics) Confirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for ai-messenger.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Adapter call metrics.
	AdapterCallsTotal   *prometheus.CounterVec
	AdapterCallDuration *prometheus.HistogramVec
	AdapterFuelUsed     *prometheus.CounterVec
	AdaptersLoaded      *prometheus.GaugeVec

	// LLM metrics.
	LLMTokensUsed *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		AdapterCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ai_messenger",
			Subsystem: "adapter",
			Name:      "calls_total",
			Help:      "Total adapter function calls.",
		}, []string{"service", "provider", "function", "status"}),

		AdapterCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ai_messenger",
			Subsystem: "adapter",
			Name:      "call_duration_seconds",
			Help:      "Adapter function call duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"service", "provider", "function"}),

		AdapterFuelUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ai_messenger",
			Subsystem: "adapter",
			Name:      "fuel_used_total",
			Help:      "Total fuel units consumed by adapter calls.",
		}, []string{"service", "provider"}),

		AdaptersLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ai_messenger",
			Subsystem: "adapter",
			Name:      "loaded",
			Help:      "Currently loaded adapter modules.",
		}, []string{"service"}),

		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ai_messenger",
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total LLM tokens consumed.",
		}, []string{"provider", "model", "direction"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ai_messenger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ai_messenger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ai_messenger",
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Requests currently in flight.",
		}),
	}

	reg.MustRegister(
		m.AdapterCallsTotal,
		m.AdapterCallDuration,
		m.AdapterFuelUsed,
		m.AdaptersLoaded,
		m.LLMTokensUsed,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

// RecordAdapterCall records one adapter invocation. Nil-safe.
func (m *MetricsCollector) RecordAdapterCall(service, provider, function, status string, duration time.Duration, fuel uint64) {
	if m == nil {
		return
	}
	m.AdapterCallsTotal.WithLabelValues(service, provider, function, status).Inc()
	m.AdapterCallDuration.WithLabelValues(service, provider, function).Observe(duration.Seconds())
	if fuel > 0 {
		m.AdapterFuelUsed.WithLabelValues(service, provider).Add(float64(fuel))
	}
}

// RecordTokens records LLM token usage. Nil-safe.
func (m *MetricsCollector) RecordTokens(provider, model string, prompt, completion uint32) {
	if m == nil {
		return
	}
	m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(prompt))
	m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(completion))
}

// SetAdaptersLoaded updates the loaded-adapter gauge for a service. Nil-safe.
func (m *MetricsCollector) SetAdaptersLoaded(service string, n int) {
	if m == nil {
		return
	}
	m.AdaptersLoaded.WithLabelValues(service).Set(float64(n))
}

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the list builder
type Metrics struct {
	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	// BI tool transport
	UpstreamRequestsTotal *prometheus.CounterVec
	SessionRefreshTotal   prometheus.Counter

	// Exports and suppression
	ExportsTotal            *prometheus.CounterVec
	ExportedContactsTotal   prometheus.Counter
	SuppressedContactsTotal prometheus.Counter
	HistoryRowsLoggedTotal  prometheus.Counter
	FailOpenTotal           *prometheus.CounterVec

	// LLM
	LLMSuggestionRequestsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listbuilder_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listbuilder_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listbuilder_upstream_requests_total",
				Help: "Requests sent to the BI tool API by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		SessionRefreshTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "listbuilder_session_refresh_total",
				Help: "Session tokens discarded after a 401 from the BI tool",
			},
		),
		ExportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listbuilder_exports_total",
				Help: "Completed list exports by kind",
			},
			[]string{"kind"},
		),
		ExportedContactsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "listbuilder_exported_contacts_total",
				Help: "Contacts written to exported mailing lists",
			},
		),
		SuppressedContactsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "listbuilder_suppressed_contacts_total",
				Help: "Contacts removed from exports by campaign-history suppression",
			},
		),
		HistoryRowsLoggedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "listbuilder_history_rows_logged_total",
				Help: "Rows appended to the campaign history table",
			},
		),
		FailOpenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listbuilder_fail_open_total",
				Help: "Best-effort operations that failed and were skipped",
			},
			[]string{"operation"},
		),
		LLMSuggestionRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listbuilder_llm_suggestion_requests_total",
				Help: "Segment suggestion requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.UpstreamRequestsTotal,
		m.SessionRefreshTotal,
		m.ExportsTotal,
		m.ExportedContactsTotal,
		m.SuppressedContactsTotal,
		m.HistoryRowsLoggedTotal,
		m.FailOpenTotal,
		m.LLMSuggestionRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance, or nil when metrics are off
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// ObserveUpstream counts one BI tool request.
func ObserveUpstream(endpoint, status string) {
	if m := Global(); m != nil {
		m.UpstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
	}
}

// SessionRefreshed counts one 401-triggered re-authentication.
func SessionRefreshed() {
	if m := Global(); m != nil {
		m.SessionRefreshTotal.Inc()
	}
}

// FailedOpen counts one tolerated failure of a best-effort operation.
func FailedOpen(operation string) {
	if m := Global(); m != nil {
		m.FailOpenTotal.WithLabelValues(operation).Inc()
	}
}

// ExportCompleted records a finished export.
func ExportCompleted(kind string, exported, suppressed int) {
	m := Global()
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(kind).Inc()
	m.ExportedContactsTotal.Add(float64(exported))
	m.SuppressedContactsTotal.Add(float64(suppressed))
}

// HistoryLogged counts rows appended to the campaign history table.
func HistoryLogged(rows int) {
	if m := Global(); m != nil {
		m.HistoryRowsLoggedTotal.Add(float64(rows))
	}
}

// SuggestionServed records one LLM suggestion request.
func SuggestionServed(provider, outcome string) {
	if m := Global(); m != nil {
		m.LLMSuggestionRequestsTotal.WithLabelValues(provider, outcome).Inc()
	}
}

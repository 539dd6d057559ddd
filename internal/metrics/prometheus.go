// Package metrics exposes ruledit's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all ruledit metrics.
type Registry struct {
	// Engine
	ParsesTotal  *prometheus.CounterVec
	SkippedLines *prometheus.CounterVec
	RuleEdits    *prometheus.CounterVec
	DiffsTotal   prometheus.Counter

	// Versions and sessions
	VersionsSaved  *prometheus.CounterVec
	ActiveSessions prometheus.Gauge

	// API
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return registry
}

// NewIsolated returns a registry backed by its own prometheus registry, for
// tests that assert on counter values.
func NewIsolated() *Registry {
	reg := prometheus.NewRegistry()
	return newRegistry(reg, reg)
}

func newRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Registry {
	f := promauto.With(reg)
	r := &Registry{gatherer: g}

	r.ParsesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ruledit_parses_total",
		Help: "Rule texts parsed into rule sets",
	}, []string{"firewall_type", "result"})

	r.SkippedLines = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ruledit_parse_skipped_lines_total",
		Help: "Input lines the parser skipped",
	}, []string{"reason"})

	r.RuleEdits = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ruledit_rule_edits_total",
		Help: "Rule edits applied to sessions",
	}, []string{"op"})

	r.DiffsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "ruledit_diffs_total",
		Help: "Version diffs computed",
	})

	r.VersionsSaved = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ruledit_versions_saved_total",
		Help: "Versions written to the store",
	}, []string{"firewall_type"})

	r.ActiveSessions = f.NewGauge(prometheus.GaugeOpts{
		Name: "ruledit_active_sessions",
		Help: "Editing sessions currently held in memory",
	})

	r.APIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ruledit_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ruledit_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RecordParse counts one parse and the lines it skipped, keyed by reason.
func (r *Registry) RecordParse(firewallType string, ok bool, skippedReasons []string) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.ParsesTotal.WithLabelValues(firewallType, result).Inc()
	for _, reason := range skippedReasons {
		r.SkippedLines.WithLabelValues(reason).Inc()
	}
}

// RecordEdit counts a rule edit; op is add, update or delete.
func (r *Registry) RecordEdit(op string) {
	r.RuleEdits.WithLabelValues(op).Inc()
}

// RecordVersionSaved counts a stored version.
func (r *Registry) RecordVersionSaved(firewallType string) {
	r.VersionsSaved.WithLabelValues(firewallType).Inc()
}

// RecordDiff counts a computed diff.
func (r *Registry) RecordDiff() {
	r.DiffsTotal.Inc()
}

// SetActiveSessions sets the session gauge.
func (r *Registry) SetActiveSessions(n int) {
	r.ActiveSessions.Set(float64(n))
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}

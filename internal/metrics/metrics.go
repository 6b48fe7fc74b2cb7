// Package metrics exposes Prometheus metrics for imports, queries and writes.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Import outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Metrics holds the registry and the collectors recorded by the service.
type Metrics struct {
	reg *prometheus.Registry

	imports        *prometheus.CounterVec
	importDuration prometheus.Histogram
	featuresLoaded prometheus.Counter
	queries        prometheus.Counter
	queryDuration  prometheus.Histogram
	featureWrites  *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorlayer_imports_total",
			Help: "Dataset imports by outcome and error code.",
		}, []string{"outcome", "code"}),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vectorlayer_import_duration_seconds",
			Help:    "Wall time of dataset imports.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		featuresLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vectorlayer_features_loaded_total",
			Help: "Features committed by successful imports.",
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vectorlayer_queries_total",
			Help: "Executed feature queries.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vectorlayer_query_duration_seconds",
			Help:    "Time to compile and start a feature query.",
			Buckets: prometheus.DefBuckets,
		}),
		featureWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vectorlayer_feature_writes_total",
			Help: "Single-feature writes by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.imports, m.importDuration, m.featuresLoaded, m.queries, m.queryDuration, m.featureWrites)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registerer exposes the registry for extra collectors.
func (m *Metrics) Registerer() prometheus.Registerer { return m.reg }

// ObserveImport records one finished import. code is empty on success.
func (m *Metrics) ObserveImport(code string, features int64, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if code != "" {
		outcome = OutcomeFailed
	} else {
		m.featuresLoaded.Add(float64(features))
	}
	m.imports.WithLabelValues(outcome, code).Inc()
	m.importDuration.Observe(d.Seconds())
}

// ObserveQuery records one executed query.
func (m *Metrics) ObserveQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.queries.Inc()
	m.queryDuration.Observe(d.Seconds())
}

// ObserveWrite records one feature write.
func (m *Metrics) ObserveWrite(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	m.featureWrites.WithLabelValues(outcome).Inc()
}

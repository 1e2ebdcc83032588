// Package telemetry provides the process-wide metrics registry as a scoped
// handle created once in main and passed via construction.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the accounting service's counters with their registry.
type Metrics struct {
	registry *prometheus.Registry

	// RecordsIngested counts records accepted via POST /record.
	RecordsIngested prometheus.Counter

	// RecordsUpdated counts records closed or refined via PUT /record.
	RecordsUpdated prometheus.Counter

	// RequestsRejected counts rejected write requests by error kind.
	RequestsRejected *prometheus.CounterVec
}

// New creates a registry with the service counters plus the standard Go
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditor_records_ingested_total",
			Help: "Records accepted via POST /record.",
		}),
		RecordsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditor_records_updated_total",
			Help: "Records updated via PUT /record.",
		}),
		RequestsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_requests_rejected_total",
			Help: "Rejected write requests by error kind.",
		}, []string{"kind"}),
	}
	registry.MustRegister(m.RecordsIngested, m.RecordsUpdated, m.RequestsRejected)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

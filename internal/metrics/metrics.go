package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reconquest"

// Metrics groups the engine's collectors on a private registry so several
// engines (tests, tools) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotWrites   prometheus.Counter
	SnapshotSkipped  prometheus.Counter
	SnapshotFailures prometheus.Counter
	QuotaEvents      prometheus.Counter
	EvictedInvoices  prometheus.Counter
	PersistedBytes   prometheus.Gauge
	RepositorySize   prometheus.Gauge
	PlanRequests     prometheus.Counter
	GeocodeLookups   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SnapshotWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshot_writes_total",
			Help: "Invoice snapshots written to durable storage.",
		}),
		SnapshotSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshot_skipped_total",
			Help: "Snapshots not persisted because nothing fit the storage budget.",
		}),
		SnapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshot_failures_total",
			Help: "Snapshot writes that failed in the storage backend.",
		}),
		QuotaEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "storage_quota_events_total",
			Help: "Writes that exceeded the storage budget.",
		}),
		EvictedInvoices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshot_evicted_invoices_total",
			Help: "Invoices left out of a persisted snapshot to respect the budget.",
		}),
		PersistedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "snapshot_bytes",
			Help: "Size of the last persisted snapshot.",
		}),
		RepositorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "repository_invoices",
			Help: "Invoices currently held in memory.",
		}),
		PlanRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "plan_requests_total",
			Help: "Plan display requests broadcast to listeners.",
		}),
		GeocodeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "geocode_lookups_total",
			Help: "Address lookups by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.SnapshotWrites, m.SnapshotSkipped, m.SnapshotFailures, m.QuotaEvents,
		m.EvictedInvoices, m.PersistedBytes, m.RepositorySize, m.PlanRequests, m.GeocodeLookups,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

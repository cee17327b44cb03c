package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the service's domain counters, registered on a private
// registry and served from /metrics alongside the bridged OTel metrics.
type Metrics struct {
	Registry *prometheus.Registry

	LicensesGenerated prometheus.Counter
	LicensesRenewed   prometheus.Counter
	AuthRejections    prometheus.Counter

	SweepRuns        prometheus.Counter
	SweepWarnings    prometheus.Counter
	SweepExpirations prometheus.Counter

	CacheHits   prometheus.CounterFunc
	CacheMisses prometheus.CounterFunc
}

// NewMetrics builds and registers the domain counters. cacheHits and
// cacheMisses pull cumulative counts from the store's cache on scrape.
func NewMetrics(cacheHits, cacheMisses func() float64) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		LicensesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licensor_licenses_generated_total",
			Help: "Licenses issued.",
		}),
		LicensesRenewed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licensor_licenses_renewed_total",
			Help: "Successful license renewals.",
		}),
		AuthRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licensor_auth_rejections_total",
			Help: "Requests refused by the signature gate.",
		}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licensor_sweep_runs_total",
			Help: "Completed sweep passes.",
		}),
		SweepWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licensor_sweep_warnings_total",
			Help: "Warning notifications sent by the sweep.",
		}),
		SweepExpirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licensor_sweep_expirations_total",
			Help: "Licenses blocked by the sweep after expiry.",
		}),
		CacheHits: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "licensor_store_cache_hits_total",
			Help: "Store cache hits.",
		}, cacheHits),
		CacheMisses: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "licensor_store_cache_misses_total",
			Help: "Store cache misses.",
		}, cacheMisses),
	}

	registry.MustRegister(
		m.LicensesGenerated,
		m.LicensesRenewed,
		m.AuthRejections,
		m.SweepRuns,
		m.SweepWarnings,
		m.SweepExpirations,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}

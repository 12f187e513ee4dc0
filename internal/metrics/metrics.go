// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector gathers facade operation outcomes, sweeper purges, and
// collection store write timings.
type Collector struct {
	operations  *prometheus.CounterVec
	sweptTotal  *prometheus.CounterVec
	storeSaves  *prometheus.CounterVec
	saveLatency prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campvibe_operations_total",
			Help: "Facade operations by operation name and outcome.",
		}, []string{"operation", "outcome"}),
		sweptTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campvibe_swept_orphans_total",
			Help: "Orphaned records removed by the sweeper, per collection.",
		}, []string{"collection"}),
		storeSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campvibe_store_saves_total",
			Help: "Collection file writes by collection and result.",
		}, []string{"collection", "result"}),
		saveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campvibe_store_save_seconds",
			Help:    "Latency of collection file writes.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.operations, c.sweptTotal, c.storeSaves, c.saveLatency)
	return c
}

// RecordOperation counts one facade operation outcome.
func (c *Collector) RecordOperation(operation, outcome string) {
	c.operations.WithLabelValues(operation, outcome).Inc()
}

// RecordSweep counts orphans purged from a collection.
func (c *Collector) RecordSweep(collection string, purged int) {
	c.sweptTotal.WithLabelValues(collection).Add(float64(purged))
}

// RecordStoreSave records one collection write and its latency.
func (c *Collector) RecordStoreSave(collection string, duration time.Duration, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	c.storeSaves.WithLabelValues(collection, result).Inc()
	c.saveLatency.Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for the registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

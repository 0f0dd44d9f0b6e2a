// Package metrics exposes reconciliation counters in Prometheus format
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the reconciliation metrics of one engine. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry  *prometheus.Registry
	sightings *prometheus.CounterVec
	decisions *prometheus.CounterVec
	plugins   *prometheus.CounterVec
	latency   prometheus.Histogram
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		sightings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetrecon_sightings_total",
			Help: "Processed sightings by outcome.",
		}, []string{"outcome"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetrecon_field_decisions_total",
			Help: "Guarded field writes by decision.",
		}, []string{"decision"}),
		plugins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetrecon_plugin_reports_total",
			Help: "Plugin collections by plugin and result.",
		}, []string{"plugin", "result"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "assetrecon_sighting_seconds",
			Help:    "Time to reconcile one sighting.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

// Sighting counts one processed sighting
func (c *Collector) Sighting(outcome string) {
	if c == nil {
		return
	}
	c.sightings.WithLabelValues(outcome).Inc()
}

// Decisions counts guarded field decisions
func (c *Collector) Decisions(accepted, rejected, confirmed int) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues("accepted").Add(float64(accepted))
	c.decisions.WithLabelValues("rejected").Add(float64(rejected))
	c.decisions.WithLabelValues("confirmed").Add(float64(confirmed))
}

// PluginReport counts one plugin collection; result is ok, no_data or error
func (c *Collector) PluginReport(plugin, result string) {
	if c == nil {
		return
	}
	c.plugins.WithLabelValues(plugin, result).Inc()
}

// Timer starts timing a sighting; call the returned function when done
func (c *Collector) Timer() func() time.Duration {
	if c == nil {
		start := time.Now()
		return func() time.Duration { return time.Since(start) }
	}
	return prometheus.NewTimer(c.latency).ObserveDuration
}

// Handler serves the collector's metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Package metrics exposes Prometheus collectors for override writes, cache lookups,
// artifact regenerations and restart signals.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "config_overlay"

// Collector owns a private registry and the service's metrics.
type Collector struct {
	registry *prometheus.Registry

	writes          *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	regenerations   *prometheus.CounterVec
	regenDuration   prometheus.Histogram
	restartSignals  *prometheus.CounterVec
	generationGauge prometheus.Gauge
}

// NewCollector creates and registers the collectors.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overrides",
			Name:      "writes_total",
			Help:      "Override write attempts by operation and outcome",
		}, []string{"operation", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by key and result",
		}, []string{"key", "result"}),
		regenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "regenerations_total",
			Help:      "Merged artifact regenerations by outcome",
		}, []string{"outcome"}),
		regenDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "merge",
			Name:      "regeneration_duration_seconds",
			Help:      "Time spent regenerating the merged artifact",
			Buckets:   prometheus.DefBuckets,
		}),
		restartSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restart",
			Name:      "signals_total",
			Help:      "Restart marker writes by outcome",
		}, []string{"outcome"}),
		generationGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "overrides",
			Name:      "generation",
			Help:      "Generation of the most recently written override document",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.writes,
		c.cacheLookups,
		c.regenerations,
		c.regenDuration,
		c.restartSignals,
		c.generationGauge,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry, primarily for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveWrite counts an override write.
func (c *Collector) ObserveWrite(operation string, err error) {
	c.writes.WithLabelValues(operation, outcome(err)).Inc()
}

// SetGeneration records the latest document generation.
func (c *Collector) SetGeneration(gen uint64) {
	c.generationGauge.Set(float64(gen))
}

func (c *Collector) ObserveCacheLookup(key, result string) {
	c.cacheLookups.WithLabelValues(key, result).Inc()
}

func (c *Collector) ObserveRegeneration(elapsed time.Duration, err error) {
	c.regenerations.WithLabelValues(outcome(err)).Inc()
	c.regenDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRestartSignal(err error) {
	c.restartSignals.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

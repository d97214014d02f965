// Package metrics records migration counters with Prometheus and writes them in the node_exporter textfile format.
//
// The tool runs once and exits, so nothing is served over HTTP: after a run the registry is written to a
// file picked up by node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/tasks"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	_ tasks.Recorder = (*Collector)(nil)
	_ tasks.Recorder = Nop{}
)

// Collector records migration metrics on a Prometheus registry.
type Collector struct {
	gatherer      prometheus.Gatherer
	imported      prometheus.Counter
	created       prometheus.Counter
	failed        *prometheus.CounterVec
	createLatency prometheus.Histogram
	lastRun       prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		gatherer: reg,
		imported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "umx_users_imported_total",
			Help: "Users read from the source device.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "umx_users_created_total",
			Help: "Users created on the target device.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "umx_users_failed_total",
			Help: "Users not created on the target device, by failure reason.",
		}, []string{"reason"}),
		createLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "umx_create_latency_seconds",
			Help:    "Latency of create calls against the target device.",
			Buckets: prometheus.DefBuckets,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "umx_last_run_timestamp_seconds",
			Help: "Unix time the last migration run finished.",
		}),
	}

	reg.MustRegister(
		c.imported,
		c.created,
		c.failed,
		c.createLatency,
		c.lastRun,
	)

	for _, r := range []models.FailureReason{models.ReasonInvalidRecord, models.ReasonAlreadyExists, models.ReasonCreateFailed} {
		c.failed.WithLabelValues(string(r))
	}

	return c
}

// Imported adds n users read from the source.
func (c *Collector) Imported(n int) {
	c.imported.Add(float64(n))
}

// Created records one successful create and its latency.
func (c *Collector) Created(latency time.Duration) {
	c.created.Inc()
	c.createLatency.Observe(latency.Seconds())
}

// Failed records one per-item failure.
func (c *Collector) Failed(reason models.FailureReason) {
	c.failed.WithLabelValues(string(reason)).Inc()
}

// Finished stamps the end of a run.
func (c *Collector) Finished(at time.Time) {
	c.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes all registered metrics to path, replacing it atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Nop implements [tasks.Recorder] with no-op methods.
type Nop struct{}

func (Nop) Imported(int)                {}
func (Nop) Created(time.Duration)       {}
func (Nop) Failed(models.FailureReason) {}
func (Nop) Finished(time.Time)          {}

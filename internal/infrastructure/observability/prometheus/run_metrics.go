// Package prometheus exposes in-process counters for measurement runs.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagespeed"

// RunMetrics implements port.RunMetrics on a private registry.
type RunMetrics struct {
	registry        *prometheus.Registry
	probes          *prometheus.CounterVec
	probeDuration   *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	running         prometheus.Gauge
	persistFailures prometheus.Counter
}

func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Probe attempts by network profile and resulting status.",
		}, []string{"network", "status"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Wall time of one probe including retries.",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 180},
		}, []string{"network"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished batch runs by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one batch run.",
			Buckets:   prometheus.ExponentialBuckets(30, 2, 10),
		}, []string{"trigger"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a batch run holds the guard.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Measurement records that could not be stored.",
		}),
	}

	m.registry.MustRegister(
		m.probes,
		m.probeDuration,
		m.runs,
		m.runDuration,
		m.running,
		m.persistFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *RunMetrics) ObserveProbe(network, status string, duration time.Duration) {
	m.probes.With(prometheus.Labels{"network": network, "status": status}).Inc()
	m.probeDuration.WithLabelValues(network).Observe(duration.Seconds())
}

func (m *RunMetrics) ObserveRun(trigger, outcome string, duration time.Duration) {
	m.runs.With(prometheus.Labels{"trigger": trigger, "outcome": outcome}).Inc()
	m.runDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

func (m *RunMetrics) SetRunning(running bool) {
	if running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}

func (m *RunMetrics) IncPersistFailures() {
	m.persistFailures.Inc()
}

// Handler serves the registry in the text exposition format.
func (m *RunMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

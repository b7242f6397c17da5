// Package metrics defines the Prometheus collectors recorded while chains run
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stepper"

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics groups the collectors of a runner. Each Metrics owns its registry so
// tests and embedded runners do not collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	RunTotal     *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	StepTotal    *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RunTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Chain runs, by chain tag and outcome",
			},
			[]string{"tag", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Chain run duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tag"},
		),
		StepTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Step executions, by step key, step type and outcome",
			},
			[]string{"key", "type", "status"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Step duration in seconds, by step type",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
	}
	m.Registry.MustRegister(m.RunTotal, m.RunDuration, m.StepTotal, m.StepDuration)
	return m
}

func (m *Metrics) ObserveRun(tag string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.RunTotal.WithLabelValues(tag, status(err)).Inc()
	m.RunDuration.WithLabelValues(tag).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveStep(key string, stepType string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.StepTotal.WithLabelValues(key, stepType, status(err)).Inc()
	m.StepDuration.WithLabelValues(stepType).Observe(time.Since(start).Seconds())
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusOK
}

// Package metrics holds hunter's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hunter"

type Metrics struct {
	ScansTotal       *prometheus.CounterVec
	JobsFoundTotal   prometheus.Counter
	JobsNewTotal     prometheus.Counter
	TasksTotal       *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	TransitionsTotal *prometheus.CounterVec
	WorkersBusy      prometheus.Gauge
}

// New registers every collector on reg, or on the default registerer when
// reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Board scans by outcome",
		}, []string{"status"}),
		JobsFoundTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_found_total",
			Help:      "Raw job listings extracted by scans",
		}),
		JobsNewTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_new_total",
			Help:      "Jobs stored after filtering and dedup",
		}),
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Worker tasks by type and result",
		}, []string{"task", "result"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Worker task duration",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		}, []string{"task"}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "application_transitions_total",
			Help:      "Application status transitions by target status",
		}, []string{"to"}),
		WorkersBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Workers currently running a task",
		}),
	}
}

func (m *Metrics) ScanFinished(status string, found, stored int) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(status).Inc()
	m.JobsFoundTotal.Add(float64(found))
	m.JobsNewTotal.Add(float64(stored))
}

func (m *Metrics) TaskFinished(task, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(task, result).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(took.Seconds())
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(to).Inc()
}

// Busy adjusts the busy-worker gauge by delta.
func (m *Metrics) Busy(delta int) {
	if m == nil {
		return
	}
	m.WorkersBusy.Add(float64(delta))
}

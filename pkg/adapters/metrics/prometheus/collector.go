package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus
type Collector struct {
	runsSubmitted     *prometheus.CounterVec
	runsCompleted     *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	tasksExecuted     *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	specErrors        *prometheus.CounterVec
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
	queueDepth        prometheus.Gauge
	activeRuns        prometheus.Gauge
}

// NewCollector creates a Prometheus metrics collector registered on reg.
// A nil reg registers on the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localdag_runs_submitted_total",
				Help: "Total number of pipeline runs submitted",
			},
			[]string{"state"},
		),
		runsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localdag_runs_completed_total",
				Help: "Total number of pipeline runs that reached a terminal state",
			},
			[]string{"state"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "localdag_run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"state"},
		),
		tasksExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localdag_tasks_executed_total",
				Help: "Total number of tasks dispatched to the task runner",
			},
			[]string{"component", "status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "localdag_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"component"},
		),
		specErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "localdag_spec_errors_total",
				Help: "Total number of runs rejected for a malformed or unsupported specification",
			},
			[]string{"kind"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "localdag_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "localdag_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "localdag_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "localdag_queue_depth",
				Help: "Number of runs waiting for a worker",
			},
		),
		activeRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "localdag_active_runs",
				Help: "Number of runs currently executing",
			},
		),
	}
}

// RecordRunSubmitted records a run submission
func (c *Collector) RecordRunSubmitted(state string) {
	c.runsSubmitted.WithLabelValues(state).Inc()
}

// RecordRunCompleted records a run reaching a terminal state
func (c *Collector) RecordRunCompleted(state string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(state).Inc()
	c.runDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordTaskExecuted records one task dispatch
func (c *Collector) RecordTaskExecuted(component string, status string, duration time.Duration) {
	c.tasksExecuted.WithLabelValues(component, status).Inc()
	c.taskDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// RecordSpecError records a rejected specification
func (c *Collector) RecordSpecError(kind string) {
	c.specErrors.WithLabelValues(kind).Inc()
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

// SetQueueDepth sets the number of queued runs
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// SetActiveRuns sets the number of executing runs
func (c *Collector) SetActiveRuns(count int) {
	c.activeRuns.Set(float64(count))
}

// Package metrics exposes the pool's operational counters and gauges as
// Prometheus collectors, following the same NewMetrics/Register/Handler
// shape the rest of this ecosystem uses for its own Prometheus wiring.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector this module registers.
type Metrics struct {
	TasksSubmitted   prometheus.Counter
	TasksCompleted   prometheus.Counter
	TasksFailed      prometheus.Counter
	TasksStolen      prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	ThreadCount      prometheus.Gauge
	IdleThreadCount  prometheus.Gauge
	ContextsLive     prometheus.Gauge
	TaskDuration     prometheus.Histogram
}

// New creates and registers the pool's collectors under namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the pool.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks whose execution context was reclaimed without a script error.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks whose script evaluation returned an error.",
		}),
		TasksStolen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_stolen_total",
			Help:      "Total number of tasks picked up via work-stealing instead of a worker's own queue.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors consumed by the pool, by kind.",
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of queued tasks, by queue.",
		}, []string{"queue"}),
		ThreadCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "thread_count",
			Help:      "Current number of worker goroutines.",
		}),
		IdleThreadCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "idle_thread_count",
			Help:      "Current number of idle worker goroutines.",
		}),
		ContextsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contexts_live",
			Help:      "Current number of live execution contexts across all workers.",
		}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration from dequeue to context reclamation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	m.register()
	return m
}

func (m *Metrics) register() {
	prometheus.MustRegister(
		m.TasksSubmitted,
		m.TasksCompleted,
		m.TasksFailed,
		m.TasksStolen,
		m.ErrorsTotal,
		m.QueueDepth,
		m.ThreadCount,
		m.IdleThreadCount,
		m.ContextsLive,
		m.TaskDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Noop returns a Metrics whose collectors are never registered, for tests
// and embedders that don't want a Prometheus registry side effect.
func Noop() *Metrics {
	return &Metrics{
		TasksSubmitted:  prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_tasks_submitted"}),
		TasksCompleted:  prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_tasks_completed"}),
		TasksFailed:     prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_tasks_failed"}),
		TasksStolen:     prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_tasks_stolen"}),
		ErrorsTotal:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "noop_errors_total"}, []string{"kind"}),
		QueueDepth:      prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "noop_queue_depth"}, []string{"queue"}),
		ThreadCount:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_thread_count"}),
		IdleThreadCount: prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_idle_thread_count"}),
		ContextsLive:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_contexts_live"}),
		TaskDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Name: "noop_task_duration_seconds"}),
	}
}

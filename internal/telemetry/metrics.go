package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bourreau"

// Metrics — Prometheus метрики воркера.
type Metrics struct {
	Cycles         prometheus.Counter
	TasksProcessed *prometheus.CounterVec
	Races          prometheus.Counter
	Defects        prometheus.Counter
	Sleeping       prometheus.Gauge
	Notifications  *prometheus.CounterVec
	ClusterCalls   *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "cycles_total",
			Help:      "Number of polling cycles run by the worker.",
		}),
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_processed_total",
			Help:      "Tasks handled by the transition driver, by resulting status.",
		}, []string{"status"}),
		Races: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "transition_races_total",
			Help:      "Transitions rejected because another worker moved the task first.",
		}),
		Defects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "defects_total",
			Help:      "Unexpected errors escaping a task transition.",
		}),
		Sleeping: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "sleeping",
			Help:      "1 while the worker is in idle-sleep mode.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "messages_total",
			Help:      "Notifications dispatched to task owners, by type.",
		}, []string{"type"}),
		ClusterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "calls_total",
			Help:      "Calls made to the cluster backend, by operation and result.",
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		m.Cycles,
		m.TasksProcessed,
		m.Races,
		m.Defects,
		m.Sleeping,
		m.Notifications,
		m.ClusterCalls,
	)

	return m
}

// NopMetrics возвращает метрики, не зарегистрированные нигде (для тестов).
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// Package metrics exposes prometheus collectors for the coordination core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LockAcquired tracks successful lock acquisitions.
	LockAcquired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentstate_lock_acquired_total",
		Help: "Total number of successful lock acquisitions",
	})
	// LockContention tracks acquisitions that gave up within their wait budget.
	LockContention = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentstate_lock_contention_total",
		Help: "Total number of lock acquisitions abandoned due to contention",
	})
	// EventsPublished tracks events published on any channel.
	EventsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentstate_events_published_total",
		Help: "Total number of published events",
	})
	// TasksClaimed tracks successful task claims.
	TasksClaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentstate_tasks_claimed_total",
		Help: "Total number of successful task claims",
	})
	// TasksCompleted tracks completed tasks.
	TasksCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentstate_tasks_completed_total",
		Help: "Total number of completed tasks",
	})
	// AgentsRegistered tracks agent registrations, refreshes included.
	AgentsRegistered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agentstate_agents_registered_total",
		Help: "Total number of agent registrations",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the core collectors on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LockAcquired, LockContention, EventsPublished,
		TasksClaimed, TasksCompleted, AgentsRegistered)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "partner_tracker"

var (
	CyclesClosedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cycles",
		Name:      "closed_rows_total",
		Help:      "Rows whose cycle_end was set by a closure, by kind",
	}, []string{"kind"})

	VerificationsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verifications",
		Name:      "logged_total",
		Help:      "Verifications written, by status",
	}, []string{"status"})

	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "created_total",
		Help:      "Notifications inserted, by type",
	}, []string{"type"})

	NotificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "suppressed_total",
		Help:      "Notifications skipped as duplicates, by type and dedup layer",
	}, []string{"type", "reason"})

	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "delivered_total",
		Help:      "Push delivery attempts, by result",
	}, []string{"result"})
)

var SchedulerJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "scheduler",
	Name:      "job_runs_total",
	Help:      "Background job executions, by job and result",
}, []string{"job", "result"})

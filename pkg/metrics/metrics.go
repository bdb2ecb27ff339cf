package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking metrics
	AppointmentsCreated prometheus.Counter
	SlotConflicts       prometheus.Counter
	StatusTransitions   *prometheus.CounterVec
	Reschedules         prometheus.Counter
	AvailabilityChecks  *prometheus.CounterVec
	LockWait            prometheus.Histogram

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Broker metrics
	BrokerPublishes *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AppointmentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "appointments_created_total",
			Help:      "Total number of appointments committed to the ledger",
		}),
		SlotConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_conflicts_total",
			Help:      "Total number of create or reschedule attempts rejected because the slot was taken",
		}),
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_transitions_total",
			Help:      "Total number of appointment status transitions",
		}, []string{"from", "to"}),
		Reschedules: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reschedules_total",
			Help:      "Total number of successful reschedules",
		}),
		AvailabilityChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "availability_checks_total",
			Help:      "Total number of availability checks by outcome",
		}, []string{"result"}),
		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_lock_wait_seconds",
			Help:      "Time spent waiting for a slot lock",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),

		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),

		BrokerPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "broker_publishes_total",
			Help:      "Total number of broker publish attempts by result",
		}, []string{"channel", "status"}),
	}
}

// NewNop returns metrics registered on a throwaway registry.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "booking", "test")
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bookingengine"

type Metrics struct {
	Submissions            *prometheus.CounterVec
	Transitions            *prometheus.CounterVec
	OperationDuration      *prometheus.HistogramVec
	CascadeCancelled       prometheus.Counter
	CascadeFailed          prometheus.Counter
	CascadeBlocks          prometheus.Counter
	CompensationExecutions prometheus.Counter
	CompensationDuration   prometheus.Histogram
	CompensationErrors     prometheus.Counter
	RecordFailures         *prometheus.CounterVec
	EventsPublished        prometheus.Counter
	EventsFailed           prometheus.Counter
	StepExecutions         *prometheus.CounterVec
	StepDuration           *prometheus.HistogramVec
}

// NewMetrics creates the engine collectors on reg. Pass prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_submissions_total",
			Help:      "Reservation submissions by outcome",
		}, []string{"outcome"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Reservation transitions by name and outcome",
		}, []string{"transition", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Facade operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"operation"}),
		CascadeCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_cancelled_total",
			Help:      "Reservations cancelled by archive cascades",
		}),
		CascadeFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_failed_total",
			Help:      "Cascade items that could not be processed",
		}),
		CascadeBlocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_blocks_deactivated_total",
			Help:      "Blocks deactivated by archive cascades",
		}),
		CompensationExecutions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensation_executions_total",
			Help:      "Total number of compensation executions",
		}),
		CompensationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compensation_duration_seconds",
			Help:      "Compensation execution duration in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5},
		}),
		CompensationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensation_errors_total",
			Help:      "Total number of compensation errors",
		}),
		RecordFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_failures_total",
			Help:      "Audit or outbox writes that failed after the state write committed",
		}, []string{"kind"}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Outbox events delivered to the broker",
		}),
		EventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Outbox delivery attempts that failed",
		}),
		StepExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Middleware-wrapped step executions by step and outcome",
		}, []string{"step", "outcome"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10},
		}, []string{"step"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSubmission records a reservation submission
func (m *Metrics) RecordSubmission(result string) {
	m.Submissions.WithLabelValues(result).Inc()
}

// RecordTransition records a reservation transition attempt
func (m *Metrics) RecordTransition(name string, err error) {
	m.Transitions.WithLabelValues(name, outcome(err)).Inc()
}

// ObserveOperation records how long a facade operation took
func (m *Metrics) ObserveOperation(op string, duration time.Duration) {
	m.OperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCascade records an archive cascade summary
func (m *Metrics) RecordCascade(cancelled, failed, blocks int) {
	m.CascadeCancelled.Add(float64(cancelled))
	m.CascadeFailed.Add(float64(failed))
	m.CascadeBlocks.Add(float64(blocks))
}

// RecordCompensation records compensation execution
func (m *Metrics) RecordCompensation(duration time.Duration, err error) {
	m.CompensationExecutions.Inc()
	m.CompensationDuration.Observe(duration.Seconds())
	if err != nil {
		m.CompensationErrors.Inc()
	}
}

// RecordRecordFailure records a post-commit audit or outbox failure
func (m *Metrics) RecordRecordFailure(kind string) {
	m.RecordFailures.WithLabelValues(kind).Inc()
}

// RecordPublish records an outbox delivery attempt
func (m *Metrics) RecordPublish(err error) {
	if err != nil {
		m.EventsFailed.Inc()
		return
	}
	m.EventsPublished.Inc()
}

// RecordStep records a middleware-wrapped step execution
func (m *Metrics) RecordStep(step string, duration time.Duration, err error) {
	m.StepExecutions.WithLabelValues(step, outcome(err)).Inc()
	m.StepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

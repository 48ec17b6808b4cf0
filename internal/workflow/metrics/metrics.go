package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document workflows.
type Metrics struct {
	Submitted         *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	StepAdvances      prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_workflows_submitted_total",
			Help: "Total number of workflows submitted, by kind (adhoc or template)",
		}, []string{"kind"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_workflow_transitions_total",
			Help: "Total number of applied workflow transitions",
		}, []string{"from", "to"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_workflow_transition_refusals_total",
			Help: "Total number of transitions refused by the validator, by result kind",
		}, []string{"kind"}),
		StepAdvances: factory.NewCounter(prometheus.CounterOpts{
			Name: "pims_workflow_step_advances_total",
			Help: "Total number of template steps completed without finishing the workflow",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pims_workflow_operation_duration_seconds",
			Help:    "Duration of workflow operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementSubmitted(kind string) {
	m.Submitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementRefusal(kind string) {
	m.Rejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementStepAdvance() {
	m.StepAdvances.Inc()
}

func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

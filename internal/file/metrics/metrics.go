package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the file lifecycle module.
type Metrics struct {
	FilesCreated        *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	CustodyMoves        *prometheus.CounterVec
	ActivationDecisions *prometheus.CounterVec
	AccessDecisions     *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
}

// New creates a Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FilesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_files_created_total",
			Help: "Total number of files opened, by category",
		}, []string{"category"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_file_transitions_total",
			Help: "Total number of file lifecycle transitions, by transition",
		}, []string{"transition"}),
		CustodyMoves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_file_custody_moves_total",
			Help: "Total number of custody changes, by kind (dispatch or recall)",
		}, []string{"kind"}),
		ActivationDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_activation_decisions_total",
			Help: "Total number of activation request decisions, by outcome",
		}, []string{"outcome"}),
		AccessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_access_decisions_total",
			Help: "Total number of access request decisions, by outcome",
		}, []string{"outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pims_file_operation_duration_seconds",
			Help:    "Duration of file lifecycle operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementFileCreated(category string) {
	m.FilesCreated.WithLabelValues(category).Inc()
}

func (m *Metrics) IncrementTransition(transition string) {
	m.Transitions.WithLabelValues(transition).Inc()
}

func (m *Metrics) IncrementCustodyMove(kind string) {
	m.CustodyMoves.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementActivationDecision(outcome string) {
	m.ActivationDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAccessDecision(outcome string) {
	m.AccessDecisions.WithLabelValues(outcome).Inc()
}

// ObserveOperation records the duration of operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

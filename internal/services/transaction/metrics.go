package transaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kevin07696/txrunner/internal/domain"
)

// Metrics holds the Prometheus collectors for a Runner.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transactionsTotal   *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec
	statementsTotal     *prometheus.CounterVec
	rollbackFailures    prometheus.Counter
	poolExhausted       prometheus.Counter
	inFlight            prometheus.Gauge
}

// NewMetrics registers the runner collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txrunner_transactions_total",
				Help: "Total number of units of work by outcome",
			},
			[]string{"outcome"},
		),
		transactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txrunner_transaction_duration_seconds",
				Help:    "Duration of units of work from acquire to release",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		statementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txrunner_statements_total",
				Help: "Total number of statements issued by result",
			},
			[]string{"result"},
		),
		rollbackFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "txrunner_rollback_failures_total",
			Help: "Total number of rollbacks that failed after a prior failure",
		}),
		poolExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "txrunner_pool_exhausted_total",
			Help: "Total number of units of work that could not acquire a connection",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "txrunner_transactions_in_flight",
			Help: "Number of units of work currently holding or waiting for a connection",
		}),
	}
}

func (m *Metrics) begin() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) finish(out *Outcome, err error) {
	if m == nil {
		return
	}
	m.inFlight.Dec()

	label := outcomeLabel(out, err)
	if label == "pool_exhausted" {
		m.poolExhausted.Inc()
	}
	m.transactionsTotal.WithLabelValues(label).Inc()
	m.transactionDuration.WithLabelValues(label).Observe(out.Duration.Seconds())
}

func (m *Metrics) statement(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.statementsTotal.WithLabelValues("error").Inc()
		return
	}
	m.statementsTotal.WithLabelValues("ok").Inc()
}

func (m *Metrics) rollbackFailed() {
	if m == nil {
		return
	}
	m.rollbackFailures.Inc()
}

func outcomeLabel(out *Outcome, err error) string {
	switch {
	case domain.IsPoolExhausted(err):
		return "pool_exhausted"
	case out.State == domain.StateCommitted:
		return "committed"
	case out.State == domain.StateRolledBack:
		return "rolled_back"
	default:
		return "failed"
	}
}

package provisioning

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics observes provisioning operations
type Metrics interface {
	OperationCompleted(role AdminRole, op OperationKind, outcome string, d time.Duration)
	OperationRetried(role AdminRole, op OperationKind)
	ChangeLogAppended(role AdminRole, op OperationKind, rows int, ok bool)
	OutboxDelivery(ok bool)
}

// Operation outcomes used as metric labels
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type noopMetrics struct{}

func (noopMetrics) OperationCompleted(AdminRole, OperationKind, string, time.Duration) {}
func (noopMetrics) OperationRetried(AdminRole, OperationKind) {}
func (noopMetrics) ChangeLogAppended(AdminRole, OperationKind, int, bool) {}
func (noopMetrics) OutboxDelivery(bool) {}

// PrometheusMetrics exports provisioning metrics to a prometheus registry
type PrometheusMetrics struct {
	OperationDuration *prometheus.HistogramVec
	OperationRetries  *prometheus.CounterVec
	ChangeLogRows     *prometheus.CounterVec
	ChangeLogFailures *prometheus.CounterVec
	OutboxDeliveries  *prometheus.CounterVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the collectors with reg. A nil reg uses the
// default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provisioning_operation_duration_seconds",
			Help:    "Duration of admin provisioning operations by role, operation and outcome",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"role", "operation", "outcome"}),

		OperationRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioning_operation_retries_total",
			Help: "Transactional core re-executions after transient failures",
		}, []string{"role", "operation"}),

		ChangeLogRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioning_changelog_rows_total",
			Help: "Change log rows appended",
		}, []string{"role", "operation"}),

		ChangeLogFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioning_changelog_failures_total",
			Help: "Change log appends that failed and were dropped",
		}, []string{"role", "operation"}),

		OutboxDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioning_outbox_deliveries_total",
			Help: "Outbox delivery attempts by result",
		}, []string{"ok"}),
	}
}

func (m *PrometheusMetrics) OperationCompleted(role AdminRole, op OperationKind, outcome string, d time.Duration) {
	if m != nil {
		m.OperationDuration.WithLabelValues(role.String(), string(op), outcome).Observe(d.Seconds())
	}
}

func (m *PrometheusMetrics) OperationRetried(role AdminRole, op OperationKind) {
	if m != nil {
		m.OperationRetries.WithLabelValues(role.String(), string(op)).Inc()
	}
}

func (m *PrometheusMetrics) ChangeLogAppended(role AdminRole, op OperationKind, rows int, ok bool) {
	if m == nil {
		return
	}
	if !ok {
		m.ChangeLogFailures.WithLabelValues(role.String(), string(op)).Inc()
		return
	}
	m.ChangeLogRows.WithLabelValues(role.String(), string(op)).Add(float64(rows))
}

func (m *PrometheusMetrics) OutboxDelivery(ok bool) {
	if m != nil {
		m.OutboxDeliveries.WithLabelValues(strconv.FormatBool(ok)).Inc()
	}
}

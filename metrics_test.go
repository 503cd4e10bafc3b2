package provisioning_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-provisioning"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := provisioning.NewPrometheusMetrics(reg)

	m.OperationCompleted(provisioning.RoleEmployee, provisioning.OperationCreate, provisioning.OutcomeSuccess, 20*time.Millisecond)
	m.OperationRetried(provisioning.RoleEmployee, provisioning.OperationCreate)
	m.OperationRetried(provisioning.RoleEmployee, provisioning.OperationCreate)
	m.ChangeLogAppended(provisioning.RoleEmployee, provisioning.OperationCreate, 4, true)
	m.ChangeLogAppended(provisioning.RoleEmployee, provisioning.OperationCreate, 2, false)
	m.OutboxDelivery(true)
	m.OutboxDelivery(false)
	m.OutboxDelivery(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationRetries.WithLabelValues("employee", "Create")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ChangeLogRows.WithLabelValues("employee", "Create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangeLogFailures.WithLabelValues("employee", "Create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxDeliveries.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxDeliveries.WithLabelValues("false")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))

	count, err := testutil.GatherAndCount(reg, "provisioning_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusMetricsNilSafe(t *testing.T) {
	var m *provisioning.PrometheusMetrics
	assert.NotPanics(t, func() {
		m.OperationCompleted(provisioning.RoleEmployee, provisioning.OperationCreate, provisioning.OutcomeFailure, time.Second)
		m.OperationRetried(provisioning.RoleEmployee, provisioning.OperationCreate)
		m.ChangeLogAppended(provisioning.RoleEmployee, provisioning.OperationCreate, 1, true)
		m.OutboxDelivery(true)
	})
}

func TestOrchestratorReportsToPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := provisioning.NewPrometheusMetrics(reg)

	env := newTestEnv(t, func(env *testEnv) {
		env.opts = append(env.opts, provisioning.WithMetrics(m))
	})

	view := env.mustCreate(provisioning.RoleEmployee, env.createMessage("employee@example.com", env.providerID, env.workshops[0]))
	require.NotNil(t, view)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.ChangeLogRows.WithLabelValues("employee", "Create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxDeliveries.WithLabelValues("true")))
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveAssignment(ResultActive, 20*time.Millisecond)
	m.ObserveAssignment(ResultDuplicate, time.Millisecond)
	m.ObserveAssignment(ResultActive, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.assignmentRuns.WithLabelValues(ResultActive)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.assignmentRuns.WithLabelValues(ResultDuplicate)))
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestObserveDecisionAndOutbox(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveDecision(3, 2, 2)
	m.ObserveOutbox(OutboxResultSent)
	m.ObserveOutbox(OutboxResultRetry)
	m.PaymentRecorded()

	require.Equal(t, 3.0, testutil.ToFloat64(m.participants.WithLabelValues("participated")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.participants.WithLabelValues("not_participated")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.outboxMessages.WithLabelValues(OutboxResultSent)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.paymentsRecorded))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveAssignment(ResultError, time.Second)
		m.ObserveDecision(1, 1, 1)
		m.ObserveOutbox(OutboxResultFailed)
		m.PaymentRecorded()
	})
}

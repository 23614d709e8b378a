package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("inventory:revaluation").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("inventory:revaluation").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory:revaluation", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("inventory:revaluation", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("inventory:revaluation")))
	require.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("inventory:revaluation")), 0.0)
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddReorderSuggestions(7, 3)
	m.AddReorderSuggestions(7, 0)
	m.AddRevalued(7, "FIFO", 2)

	require.Equal(t, 3.0, testutil.ToFloat64(m.suggestions.WithLabelValues("7")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.revalued.WithLabelValues("7", "FIFO")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("x").End(nil))
	m.AddReorderSuggestions(1, 1)
	m.AddRevalued(1, "LIFO", 1)
}

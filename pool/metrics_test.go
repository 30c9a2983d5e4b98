package pool

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestMetricsSampleReflectsDispatcherStats(t *testing.T) {
	w := newMockWorker()
	w.setAvailable(false)

	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	d, err := NewDispatcher("", Options{
		MinWorkers: 1,
		MaxWorkers: 1,
		Metrics:    m,
		Factory:    mockFactory(func() *mockWorker { return w }),
	})
	require.NoError(t, err)

	_, err = d.Submit("queued", nil, TaskOptions{})
	require.NoError(t, err)

	m.Sample(d)

	assert := func(g prometheus.Gauge, want float64) {
		t.Helper()
		var metric dto.Metric
		require.NoError(t, g.Write(&metric))
		require.Equal(t, want, metric.GetGauge().GetValue())
	}
	assert(m.Workers, 1)
	assert(m.QueueDepth, 1)
}

func TestMetricsRegisterRejectsDuplicateRegistration(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	other := NewMetrics()
	require.Error(t, other.Register(reg))
}

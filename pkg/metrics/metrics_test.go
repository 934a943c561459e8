package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCounterAddAccumulatesPerLabelSet(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	labels := map[string]string{"effect_type": "reflex::core::evaluate"}
	m.CounterAdd("reflex_workers_started_total", labels, 1)
	m.CounterAdd("reflex_workers_started_total", labels, 2)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].Metric, 1)
	assertCounterValue(t, families[0].Metric[0], 3)
}

func assertCounterValue(t *testing.T, m *dto.Metric, want float64) {
	t.Helper()
	require.NotNil(t, m.Counter)
	require.Equal(t, want, m.Counter.GetValue())
}

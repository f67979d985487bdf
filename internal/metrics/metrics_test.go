package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	depths := map[string]float64{"pending": 4, "dead": 1}
	TaskQueueDepth(reg, func(list string) float64 { return depths[list] })

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "pairwise_task_queue_depth", families[0].GetName())

	got := make(map[string]float64)
	for _, m := range families[0].GetMetric() {
		require.Len(t, m.GetLabel(), 1)
		got[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
	}
	assert.Equal(t, depths, got)
}

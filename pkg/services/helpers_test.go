package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/labqms/pkg/metrics"
)

var fixedNow = time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)

// counterValue reads one counter sample from the metrics registry, or 0 when
// no sample with those labels exists yet.
func counterValue(t *testing.T, m *metrics.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range family.GetMetric() {
			got := make(map[string]string, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				got[pair.GetName()] = pair.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metricLoop
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

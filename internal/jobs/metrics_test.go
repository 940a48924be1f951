package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	assert.NoError(t, m.Track("filters:audit").End(nil))
	assert.NoError(t, m.Track("filters:audit").End(nil))
	boom := errors.New("boom")
	assert.Same(t, boom, m.Track("filters:audit").End(boom))

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, float64(2), counterValue(t, families, "taskdesk_jobs_total", map[string]string{"job": "filters:audit", "status": "success"}))
	assert.Equal(t, float64(1), counterValue(t, families, "taskdesk_jobs_total", map[string]string{"job": "filters:audit", "status": "failure"}))
	assert.Equal(t, float64(1), counterValue(t, families, "taskdesk_jobs_failures_total", map[string]string{"job": "filters:audit"}))
	assert.Equal(t, uint64(3), histogramCount(t, families, "taskdesk_job_duration_seconds", map[string]string{"job": "filters:audit"}))
}

func TestNilMetricsTrackerIsNoop(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.Same(t, boom, m.Track("x").End(boom))
	assert.NoError(t, m.Track("x").End(nil))
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, metric := range find(families, name, labels) {
		return metric.GetCounter().GetValue()
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramCount(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) uint64 {
	t.Helper()
	for _, metric := range find(families, name, labels) {
		return metric.GetHistogram().GetSampleCount()
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func find(families []*dto.MetricFamily, name string, labels map[string]string) []*dto.Metric {
	var out []*dto.Metric
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				out = append(out, metric)
			}
		}
	}
	return out
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

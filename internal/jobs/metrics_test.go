package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("pricesheet:import").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("pricesheet:import").End(boom), boom)

	assert.Equal(t, 1.0, counterValue(t, m.runs.WithLabelValues("pricesheet:import", "success")))
	assert.Equal(t, 1.0, counterValue(t, m.runs.WithLabelValues("pricesheet:import", "failure")))
	assert.Equal(t, 1.0, counterValue(t, m.failures.WithLabelValues("pricesheet:import")))
}

func TestRecordImport(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordImport("upload", 12, 3)
	m.RecordImport("upload", 0, 1)

	assert.Equal(t, 12.0, counterValue(t, m.imported.WithLabelValues("upload")))
	assert.Equal(t, 4.0, counterValue(t, m.skipped.WithLabelValues("upload")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordImport("cli", 1, 1)
	assert.NoError(t, m.Track("noop").End(nil))
}

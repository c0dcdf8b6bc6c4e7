package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpequegn/benchflow-eval/internal/storage"
)

func points(passRates ...float64) []storage.ModelStatPoint {
	var out []storage.ModelStatPoint
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, pr := range passRates {
		out = append(out, storage.ModelStatPoint{
			VariantID: "V1",
			Timestamp: start.AddDate(0, 0, i),
			PassRate:  pr,
		})
	}
	return out
}

func TestCalculateTrend_Improving(t *testing.T) {
	a := NewBasicTrendAnalyzer()
	trend, err := a.CalculateTrend("V1", points(50, 60, 70, 80, 90), 3, MetricPassRate)
	require.NoError(t, err)
	assert.Equal(t, "improving", trend.Direction)
	assert.Greater(t, trend.Slope, 0.0)
	assert.InDelta(t, 1.0, trend.RSquared, 0.01)
}

func TestCalculateTrend_Degrading(t *testing.T) {
	a := NewBasicTrendAnalyzer()
	trend, err := a.CalculateTrend("V1", points(90, 80, 70, 60), 3, MetricPassRate)
	require.NoError(t, err)
	assert.Equal(t, "degrading", trend.Direction)
}

func TestCalculateTrend_Stable(t *testing.T) {
	a := NewBasicTrendAnalyzer()
	trend, err := a.CalculateTrend("V1", points(80, 80.02, 79.98, 80.01), 3, MetricPassRate)
	require.NoError(t, err)
	assert.Equal(t, "stable", trend.Direction)
}

func TestCalculateTrend_InsufficientData(t *testing.T) {
	a := NewBasicTrendAnalyzer()
	_, err := a.CalculateTrend("V1", points(80, 90), 3, MetricPassRate)
	assert.Error(t, err)
}

func TestDetectAnomalies_FlagsSuddenDrop(t *testing.T) {
	a := NewBasicTrendAnalyzer()
	history := points(90, 91, 89, 90, 10, 91, 90)
	anomalies := a.DetectAnomalies("V1", history, 1.5, MetricPassRate)
	require.NotEmpty(t, anomalies)
	assert.True(t, anomalies[0].IsDrop)
}

func TestDetectAnomalies_NoVarianceYieldsNone(t *testing.T) {
	a := NewBasicTrendAnalyzer()
	anomalies := a.DetectAnomalies("V1", points(80, 80, 80), 2.0, MetricPassRate)
	assert.Empty(t, anomalies)
}

// Package analyzer fits trends and flags anomalies across a model variant's
// historical runs (internal/storage), repointed from benchflow's
// nanosecond-timing trend/anomaly code onto pass-rate and average-score
// series.
package analyzer

import (
	"time"

	"github.com/jpequegn/benchflow-eval/internal/storage"
)

// Metric extracts the series value to analyze from a history point.
type Metric func(storage.ModelStatPoint) float64

// MetricPassRate and MetricAvgScore are the two series the trend CLI
// command supports.
var (
	MetricPassRate = func(p storage.ModelStatPoint) float64 { return p.PassRate }
	MetricAvgScore = func(p storage.ModelStatPoint) float64 { return p.AvgScore }
)

// TrendResult is a linear fit through a variant's history, higher-is-better
// metrics only (pass rate, score): a positive slope means "improving".
type TrendResult struct {
	VariantID     string
	Direction     string // "improving", "degrading", "stable"
	Slope         float64
	RSquared      float64
	ChangePercent float64
	PeriodDays    int
	DataPoints    int
	StartTime     time.Time
	EndTime       time.Time
	StartValue    float64
	EndValue      float64
}

// Anomaly flags one historical point whose metric deviated sharply from
// the mean of the variant's whole history series.
type Anomaly struct {
	VariantID string
	Timestamp time.Time
	Value     float64
	ZScore    float64
	Severity  string // "critical", "high", "medium", "low"
	IsDrop    bool
}

// TrendAnalyzer computes trend/anomaly statistics over a variant's history.
type TrendAnalyzer interface {
	CalculateTrend(variantID string, history []storage.ModelStatPoint, minDataPoints int, metric Metric) (*TrendResult, error)
	DetectAnomalies(variantID string, history []storage.ModelStatPoint, zScoreThreshold float64, metric Metric) []*Anomaly
}

// BasicTrendAnalyzer is the default TrendAnalyzer.
type BasicTrendAnalyzer struct {
	ZScoreThreshold float64
}

// NewBasicTrendAnalyzer creates an analyzer with a 2.0 default threshold.
func NewBasicTrendAnalyzer() *BasicTrendAnalyzer {
	return &BasicTrendAnalyzer{ZScoreThreshold: 2.0}
}

package analyzer

import (
	"fmt"
	"math"

	"github.com/jpequegn/benchflow-eval/internal/storage"
)

// CalculateTrend fits a line through history (assumed already ordered
// oldest-first, as internal/storage.History returns it) against days
// since the first point, same ordinary-least-squares shape as
// benchflow's CalculateTrend, generalized over an arbitrary Metric.
func (bta *BasicTrendAnalyzer) CalculateTrend(variantID string, history []storage.ModelStatPoint, minDataPoints int, metric Metric) (*TrendResult, error) {
	if len(history) < minDataPoints {
		return nil, fmt.Errorf("analyzer: insufficient data points: %d < %d", len(history), minDataPoints)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("analyzer: no history for %q", variantID)
	}

	n := float64(len(history))
	var sumX, sumY, sumXY, sumX2 float64
	startTime := history[0].Timestamp

	for _, p := range history {
		x := p.Timestamp.Sub(startTime).Hours() / 24
		y := metric(p)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if math.Abs(denominator) < 1e-10 {
		return nil, fmt.Errorf("analyzer: no time variance in history for %q", variantID)
	}

	slope := (n*sumXY - sumX*sumY) / denominator
	intercept := (sumY - slope*sumX) / n

	ssRes, ssTot := 0.0, 0.0
	meanY := sumY / n
	for _, p := range history {
		x := p.Timestamp.Sub(startTime).Hours() / 24
		predicted := intercept + slope*x
		actual := metric(p)
		ssRes += (actual - predicted) * (actual - predicted)
		ssTot += (actual - meanY) * (actual - meanY)
	}
	rSquared := 1.0
	if ssTot > 0 {
		rSquared = 1.0 - ssRes/ssTot
	}
	rSquared = math.Max(0, math.Min(1, rSquared))

	direction := "stable"
	if math.Abs(slope) > 0.1 { // > 0.1 point/day change
		if slope > 0 {
			direction = "improving"
		} else {
			direction = "degrading"
		}
	}

	endTime := history[len(history)-1].Timestamp
	periodDays := int(endTime.Sub(startTime).Hours() / 24)
	if periodDays == 0 {
		periodDays = 1
	}

	startValue := metric(history[0])
	endValue := metric(history[len(history)-1])
	changePercent := 0.0
	if startValue != 0 {
		changePercent = (endValue - startValue) / startValue * 100
	}

	return &TrendResult{
		VariantID:     variantID,
		Direction:     direction,
		Slope:         slope,
		RSquared:      rSquared,
		ChangePercent: changePercent,
		PeriodDays:    periodDays,
		DataPoints:    len(history),
		StartTime:     startTime,
		EndTime:       endTime,
		StartValue:    startValue,
		EndValue:      endValue,
	}, nil
}

// DetectAnomalies flags points whose metric value is more than
// zScoreThreshold sample standard deviations (n-1 denominator) from the
// series mean, same shape as benchflow's DetectAnomalies.
func (bta *BasicTrendAnalyzer) DetectAnomalies(variantID string, history []storage.ModelStatPoint, zScoreThreshold float64, metric Metric) []*Anomaly {
	if len(history) < 2 {
		return nil
	}

	values := make([]float64, len(history))
	for i, p := range history {
		values[i] = metric(p)
	}
	mean := calculateMean(values)
	stdDev := calculateStdDev(values, mean)
	if stdDev == 0 {
		return nil
	}

	var anomalies []*Anomaly
	for i, p := range history {
		value := values[i]
		zScore := (value - mean) / stdDev
		if math.Abs(zScore) <= zScoreThreshold {
			continue
		}

		severity := "low"
		switch {
		case math.Abs(zScore) > 3.0:
			severity = "critical"
		case math.Abs(zScore) > 2.5:
			severity = "high"
		case math.Abs(zScore) > 1.5:
			severity = "medium"
		}

		isDrop := value < mean
		if i > 0 && values[i-1] > 0 {
			isDrop = value < values[i-1]*0.95
		}

		anomalies = append(anomalies, &Anomaly{
			VariantID: variantID,
			Timestamp: p.Timestamp,
			Value:     value,
			ZScore:    zScore,
			Severity:  severity,
			IsDrop:    isDrop,
		})
	}
	return anomalies
}

func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func calculateStdDev(values []float64, mean float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

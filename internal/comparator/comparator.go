package comparator

import "math"

// Compare reports the delta between two variants' series, same pooled-stddev
// t-statistic and normalCDF shape as benchflow's GetSignificance, applied
// to whole series (not single points).
func (bc *BasicComparator) Compare(a, b Series) *Result {
	result := &Result{
		VariantA:        a.VariantID,
		VariantB:        b.VariantID,
		ConfidenceLevel: bc.ConfidenceLevel,
	}

	if len(a.Values) == 0 || len(b.Values) == 0 {
		result.PValue = 1.0
		return result
	}

	meanA := calculateMean(a.Values)
	meanB := calculateMean(b.Values)

	if meanA != 0 {
		result.DeltaPercent = (meanB - meanA) / meanA * 100
	}

	result.EffectSize = CohensDEffect(a.Values, b.Values)
	result.IsSignificant, result.PValue = bc.significance(a.Values, b.Values)

	return result
}

// significance tests whether two series' means differ more than chance,
// same pooled standard deviation and rational-approximation normalCDF as
// benchflow's GetSignificance, generalized to arbitrary-length series instead
// of single-sample baseline/current pairs.
func (bc *BasicComparator) significance(a, b []float64) (bool, float64) {
	meanA := calculateMean(a)
	meanB := calculateMean(b)
	stdA := calculateStdDev(a, meanA)
	stdB := calculateStdDev(b, meanB)

	if stdA == 0 && len(a) == 1 {
		stdA = meanA * 0.05
	}
	if stdB == 0 && len(b) == 1 {
		stdB = meanB * 0.05
	}

	pooledStdDev := math.Sqrt((stdA*stdA + stdB*stdB) / 2)
	if pooledStdDev == 0 {
		pooledStdDev = meanA * 0.01
	}
	if pooledStdDev == 0 {
		return false, 1.0
	}

	se := pooledStdDev * math.Sqrt(1/float64(len(a))+1/float64(len(b)))
	if se == 0 {
		return false, 1.0
	}

	tStat := (meanB - meanA) / se
	pValue := 2 * (1 - normalCDF(math.Abs(tStat)))

	alpha := 1 - bc.ConfidenceLevel
	return pValue < alpha, pValue
}

// CalculateConfidenceInterval reports the confidence interval for a series,
// same z-score approximation as benchflow's CalculateConfidenceInterval.
func CalculateConfidenceInterval(values []float64, confidenceLevel float64) (lower, upper float64) {
	if len(values) == 0 {
		return 0, 0
	}

	mean := calculateMean(values)
	stdDev := calculateStdDev(values, mean)

	zScore := 1.96
	if confidenceLevel == 0.99 {
		zScore = 2.576
	}

	marginOfError := zScore * (stdDev / math.Sqrt(float64(len(values))))
	lower = mean - marginOfError
	upper = mean + marginOfError
	if lower < 0 {
		lower = 0
	}
	return lower, upper
}

// normalCDF approximates the standard normal CDF via a rational
// approximation, unchanged from benchflow's normalCDF.
func normalCDF(x float64) float64 {
	b1 := 0.319381530
	b2 := -0.356563782
	b3 := 1.781477937
	b4 := -1.821255978
	b5 := 1.330274429
	p := 0.2316419
	c := 0.39894228

	if x >= 0 {
		t := 1.0 / (1.0 + p*x)
		return 1.0 - c*math.Exp(-x*x/2.0)*t*(b1+t*(b2+t*(b3+t*(b4+t*b5))))
	}
	t := 1.0 / (1.0 - p*x)
	return c * math.Exp(-x*x/2.0) * t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
}

// CohensDEffect calculates Cohen's d effect size, unchanged from
// benchflow's CohensDEffect.
func CohensDEffect(group1, group2 []float64) float64 {
	if len(group1) == 0 || len(group2) == 0 {
		return 0
	}

	mean1 := calculateMean(group1)
	mean2 := calculateMean(group2)
	std1 := calculateStdDev(group1, mean1)
	std2 := calculateStdDev(group2, mean2)

	n1 := float64(len(group1))
	n2 := float64(len(group2))
	variance1 := std1 * std1
	variance2 := std2 * std2

	denom := n1 + n2 - 2
	if denom <= 0 {
		return 0
	}
	pooledVariance := ((n1-1)*variance1 + (n2-1)*variance2) / denom
	pooledStdDev := math.Sqrt(pooledVariance)
	if pooledStdDev == 0 {
		return 0
	}

	return (mean2 - mean1) / pooledStdDev
}

func calculateMean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func calculateStdDev(data []float64, mean float64) float64 {
	if len(data) <= 1 {
		return 0
	}
	varianceSum := 0.0
	for _, v := range data {
		diff := v - mean
		varianceSum += diff * diff
	}
	return math.Sqrt(varianceSum / float64(len(data)-1))
}

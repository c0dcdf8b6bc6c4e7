package comparator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare_NoDifference(t *testing.T) {
	c := NewBasicComparator()
	a := Series{VariantID: "A", Values: []float64{100, 102, 98, 101, 99}}
	b := Series{VariantID: "B", Values: []float64{100, 101, 99, 100, 100}}

	result := c.Compare(a, b)
	assert.InDelta(t, 0, result.DeltaPercent, 2)
	assert.False(t, result.IsSignificant)
}

func TestCompare_LargeConsistentDifference(t *testing.T) {
	c := NewBasicComparator()
	a := Series{VariantID: "A", Values: []float64{1000, 1010, 990, 1005, 995}}
	b := Series{VariantID: "B", Values: []float64{500, 510, 490, 505, 495}}

	result := c.Compare(a, b)
	assert.Less(t, result.DeltaPercent, 0.0)
	assert.True(t, result.IsSignificant)
	assert.Less(t, result.PValue, 0.05)
}

func TestCompare_EmptySeriesReturnsInsignificant(t *testing.T) {
	c := NewBasicComparator()
	result := c.Compare(Series{VariantID: "A"}, Series{VariantID: "B", Values: []float64{10}})
	assert.False(t, result.IsSignificant)
	assert.Equal(t, 1.0, result.PValue)
}

func TestCohensDEffect_IdenticalGroupsIsZero(t *testing.T) {
	d := CohensDEffect([]float64{10, 10, 10}, []float64{10, 10, 10})
	assert.Equal(t, 0.0, d)
}

func TestCohensDEffect_LargeSeparationIsLarge(t *testing.T) {
	d := CohensDEffect([]float64{10, 11, 9, 10}, []float64{100, 101, 99, 100})
	assert.Greater(t, d, 5.0)
}

func TestCalculateConfidenceInterval_BoundsAroundMean(t *testing.T) {
	lower, upper := CalculateConfidenceInterval([]float64{100, 102, 98, 101, 99}, 0.95)
	assert.LessOrEqual(t, lower, 100.0)
	assert.GreaterOrEqual(t, upper, 100.0)
}

package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCorrelationPerfectlyCorrelated(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}

	coeff, err := CalculateCorrelation(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, coeff, 1e-9)
}

func TestCalculateCorrelationRejectsMismatchedLengths(t *testing.T) {
	_, err := CalculateCorrelation([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestCalculateZScore(t *testing.T) {
	assert.Equal(t, 0.0, CalculateZScore(5, 5, 0))
	assert.InDelta(t, 2.0, CalculateZScore(10, 0, 5), 1e-9)
}

func TestCalculateSpread(t *testing.T) {
	spread, err := CalculateSpread([]float64{10, 20}, []float64{5, 10}, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 10}, spread)
}

func TestEstimateHalfLifeOfMeanRevertingSeries(t *testing.T) {
	spread := []float64{2, 1, -1, -0.5, 0.3, -0.2, 0.1}
	halfLife, err := EstimateHalfLife(spread)
	require.NoError(t, err)
	assert.Greater(t, halfLife, 0)
}

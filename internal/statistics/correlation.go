// Package statistics provides cross-symbol statistical helpers (Pearson
// correlation, spread z-scores, mean-reversion half-life) used by the
// admin HTTP surface's pairs-style correlation endpoint. The rolling
// per-symbol statistics (VWAP, Parkinson volatility) live in internal/book
// instead, since they are scoped to one book rather than a pair.
package statistics

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// CalculateCorrelation returns the Pearson correlation coefficient between
// two equal-length series, backed by gonum.org/v1/gonum/stat.Correlation.
func CalculateCorrelation(x, y []float64) (float64, error) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, errors.New("input slices must have same length and at least 2 elements")
	}
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0, errors.New("standard deviation is zero")
	}
	return stat.Correlation(x, y, nil), nil
}

// CalculateZScore calculates the z-score of the current spread.
func CalculateZScore(spread, mean, stdDev float64) float64 {
	if stdDev == 0 {
		return 0
	}
	return (spread - mean) / stdDev
}

// CalculateSpread calculates the spread between two price series for a
// given hedge ratio.
func CalculateSpread(prices1, prices2 []float64, ratio float64) ([]float64, error) {
	if len(prices1) != len(prices2) {
		return nil, errors.New("price series must have the same length")
	}
	spread := make([]float64, len(prices1))
	for i := range prices1 {
		spread[i] = prices1[i] - (ratio * prices2[i])
	}
	return spread, nil
}

// CalculateMean returns the arithmetic mean of data, backed by gonum's
// stat.Mean.
func CalculateMean(data []float64) (float64, error) {
	if len(data) == 0 {
		return 0, errors.New("empty data slice")
	}
	return stat.Mean(data, nil), nil
}

// CalculateStdDev returns the sample standard deviation of data, backed by
// gonum's stat.StdDev. mean is accepted for API compatibility with callers
// that already computed it via CalculateMean, but stat.StdDev derives its
// own mean internally.
func CalculateStdDev(data []float64, mean float64) (float64, error) {
	if len(data) < 2 {
		return 0, errors.New("need at least two data points")
	}
	return stat.StdDev(data, nil), nil
}

// EstimateHalfLife estimates the half-life of mean reversion for a spread
// series using an Ornstein-Uhlenbeck process fit via simple linear
// regression of the lagged spread against its first difference.
func EstimateHalfLife(spread []float64) (int, error) {
	if len(spread) < 3 {
		return 0, errors.New("need at least three data points")
	}

	y := make([]float64, len(spread)-1)
	x := make([]float64, len(spread)-1)
	for i := 0; i < len(spread)-1; i++ {
		y[i] = spread[i+1] - spread[i]
		x[i] = spread[i]
	}

	_, lambda := stat.LinearRegression(x, y, nil, false)
	if lambda >= 0 {
		return 0, errors.New("process is not mean-reverting")
	}

	halfLife := math.Log(2) / math.Abs(lambda)
	return int(math.Round(halfLife)), nil
}

package analytics

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"PairPulse/internal/domain/models"
)

// DefaultMinRegressionSamples is the smallest sample the estimator fits on.
const DefaultMinRegressionSamples = 10

// OLSEstimator fits price_A = alpha + beta*price_B by ordinary least squares.
type OLSEstimator struct{}

func NewOLSEstimator() *OLSEstimator { return &OLSEstimator{} }

// Estimate returns ErrInsufficientData below minSamples and ErrDegenerateRegression
// when price_B has zero variance.
func (OLSEstimator) Estimate(series models.AlignedSeries, minSamples int, at time.Time) (models.RegressionResult, error) {
	if minSamples < 2 {
		minSamples = DefaultMinRegressionSamples
	}
	n := len(series)
	if n < minSamples {
		return models.RegressionResult{}, fmt.Errorf("ols: %d samples, need %d: %w", n, minSamples, models.ErrInsufficientData)
	}
	a, b := series.Legs()
	if stat.Variance(b, nil) == 0 {
		return models.RegressionResult{}, fmt.Errorf("ols: price_b is constant: %w", models.ErrDegenerateRegression)
	}

	alpha, beta := stat.LinearRegression(b, a, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return models.RegressionResult{}, fmt.Errorf("ols: non-finite slope: %w", models.ErrDegenerateRegression)
	}
	return models.RegressionResult{
		HedgeRatio: beta,
		Intercept:  alpha,
		RSquared:   rSquared(a, b, alpha, beta),
		SampleSize: n,
		ComputedAt: at,
	}, nil
}

// rSquared is 1 - SS_res/SS_tot. A constant dependent leg fits perfectly.
func rSquared(y, x []float64, alpha, beta float64) float64 {
	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := range y {
		r := y[i] - (alpha + beta*x[i])
		ssRes += r * r
		d := y[i] - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

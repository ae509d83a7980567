package service

import (
	"context"
	"time"

	"PairPulse/internal/domain/models"
)

// PairEstimator fits the hedge ratio of leg A on leg B.
type PairEstimator interface {
	Estimate(series models.AlignedSeries, minSamples int, at time.Time) (models.RegressionResult, error)
}

// SpreadEngine derives the spread, its rolling statistics and the rolling correlation.
type SpreadEngine interface {
	Compute(series models.AlignedSeries, reg models.RegressionResult, window int) (models.SpreadSeries, error)
}

// StationarityTester runs a unit-root test on a spread series.
type StationarityTester interface {
	Test(ctx context.Context, spread []float64) (models.ADFResult, error)
}

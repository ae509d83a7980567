package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"PairPulse/internal/domain/models"
)

// DefaultWindowSize is the rolling window used when none is configured.
const DefaultWindowSize = 20

// zeroStdTolerance treats a rolling std this small relative to the mean as zero.
const zeroStdTolerance = 1e-12

// RollingSpread computes spread, rolling mean/std, z-score and rolling correlation.
type RollingSpread struct{}

func NewRollingSpread() *RollingSpread { return &RollingSpread{} }

// Compute returns one point per aligned observation. The first window-1 points
// carry nil rolling fields.
func (RollingSpread) Compute(series models.AlignedSeries, reg models.RegressionResult, window int) (models.SpreadSeries, error) {
	if window < 2 {
		return models.SpreadSeries{}, fmt.Errorf("spread: window must be >= 2, got %d: %w", window, models.ErrInvalidConfig)
	}
	n := len(series)
	a, b := series.Legs()
	values := make([]float64, n)
	for i := range series {
		values[i] = a[i] - reg.HedgeRatio*b[i]
	}

	points := make([]models.SpreadPoint, n)
	corr := make([]models.CorrelationPoint, n)
	for i := range series {
		ts := series[i].Timestamp
		points[i] = models.SpreadPoint{Timestamp: ts, Spread: values[i]}
		corr[i] = models.CorrelationPoint{Timestamp: ts}
		if i+1 < window {
			continue
		}
		lo := i + 1 - window

		mean, std := stat.MeanStdDev(values[lo:i+1], nil)
		points[i].RollingMean = models.Float(mean)
		points[i].RollingStd = models.Float(std)
		if !isZeroStd(std, mean) {
			points[i].ZScore = models.Float((values[i] - mean) / std)
		}
		corr[i].Correlation = rollingCorrelation(a[lo:i+1], b[lo:i+1])
	}
	return models.SpreadSeries{Points: points, Correlation: corr, Values: values}, nil
}

func isZeroStd(std, mean float64) bool {
	return std <= zeroStdTolerance*math.Max(1, math.Abs(mean))
}

// rollingCorrelation is nil when either leg is flat over the window.
func rollingCorrelation(a, b []float64) *float64 {
	ma, sa := stat.MeanStdDev(a, nil)
	mb, sb := stat.MeanStdDev(b, nil)
	if isZeroStd(sa, ma) || isZeroStd(sb, mb) {
		return nil
	}
	c := stat.Correlation(a, b, nil)
	if math.IsNaN(c) {
		return nil
	}
	return models.Float(math.Max(-1, math.Min(1, c)))
}

package analytics

import (
	"math"
	"math/rand"

	"PairPulse/internal/domain/models"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// ar1 generates y_t = phi*y_{t-1} + e_t with a fixed seed, shifted by level.
func ar1(seed int64, n int, phi, level float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	prev := 0.0
	for i := range out {
		prev = phi*prev + rng.NormFloat64()
		out[i] = level + prev
	}
	return out
}

// pairSeries builds A = alpha + beta*B + noise with B a random walk.
func pairSeries(seed int64, n int, alpha, beta, noise float64) models.AlignedSeries {
	rng := rand.New(rand.NewSource(seed))
	out := make(models.AlignedSeries, n)
	b := 100.0
	for i := range out {
		b += rng.NormFloat64()
		out[i] = models.AlignedPoint{
			Timestamp: int64(i) * 1000,
			PriceA:    alpha + beta*b + noise*rng.NormFloat64(),
			PriceB:    b,
		}
	}
	return out
}

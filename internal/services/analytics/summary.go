package analytics

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"PairPulse/internal/domain/models"
)

// Returns computes simple returns r_t = C_t/C_{t-1} - 1.
// It returns a slice of length len(prices)-1, or nil if insufficient data.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, prices[i]/prev-1)
	}
	return out
}

// Summarize computes descriptive statistics of a price series.
// Std fields are zero when fewer than two observations exist.
func Summarize(symbol string, prices []float64) models.SymbolStats {
	s := models.SymbolStats{Symbol: symbol, Count: len(prices)}
	if len(prices) == 0 {
		return s
	}
	s.Mean = stat.Mean(prices, nil)
	s.Min = floats.Min(prices)
	s.Max = floats.Max(prices)
	s.Last = prices[len(prices)-1]
	if len(prices) > 1 {
		s.Std = stat.StdDev(prices, nil)
	}
	if r := Returns(prices); len(r) > 0 {
		s.ReturnsMean = stat.Mean(r, nil)
		if len(r) > 1 {
			s.ReturnsStd = stat.StdDev(r, nil)
		}
	}
	return s
}

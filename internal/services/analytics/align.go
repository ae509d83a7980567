package analytics

import (
	"fmt"

	"PairPulse/internal/domain/models"
)

// AlignBars inner-joins two bar series on bucket start using closes.
// Both inputs must be ordered by Start, which Resample guarantees.
func AlignBars(a, b []models.Bar) models.AlignedSeries {
	out := make(models.AlignedSeries, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Start < b[j].Start:
			i++
		case a[i].Start > b[j].Start:
			j++
		default:
			out = append(out, models.AlignedPoint{Timestamp: a[i].Start, PriceA: a[i].Close, PriceB: b[j].Close})
			i++
			j++
		}
	}
	return out
}

// AlignTicks inner-joins two ordered tick series on buckets of widthMs,
// taking the last price of each leg in the bucket.
func AlignTicks(a, b []models.Tick, widthMs int64) (models.AlignedSeries, error) {
	if widthMs <= 0 {
		return nil, fmt.Errorf("align: bucket width must be positive, got %d", widthMs)
	}
	la := lastPerBucket(a, widthMs)
	lb := lastPerBucket(b, widthMs)
	return AlignBars(la, lb), nil
}

func lastPerBucket(ticks []models.Tick, widthMs int64) []models.Bar {
	out := make([]models.Bar, 0, len(ticks))
	for _, t := range ticks {
		start := bucketStart(t.Timestamp, widthMs)
		if n := len(out); n > 0 && out[n-1].Start == start {
			out[n-1].Close = t.Price
			continue
		}
		out = append(out, models.Bar{Symbol: t.Symbol, Start: start, Close: t.Price})
	}
	return out
}

package analytics

import (
	"fmt"
	"sort"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
)

// Resample buckets ticks into OHLCV bars of width iv.
// Bucket start is floor(ts/width)*width; buckets without ticks are not emitted.
// The input is not modified; unordered input is sorted on a copy first.
func Resample(ticks []models.Tick, iv repository.Interval) ([]models.Bar, error) {
	width := iv.Millis()
	if width <= 0 {
		return nil, fmt.Errorf("resample: unsupported interval %q", iv)
	}
	if len(ticks) == 0 {
		return nil, nil
	}
	if !sort.SliceIsSorted(ticks, func(i, j int) bool { return ticks[i].Timestamp < ticks[j].Timestamp }) {
		sorted := make([]models.Tick, len(ticks))
		copy(sorted, ticks)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
		ticks = sorted
	}

	bars := make([]models.Bar, 0, 64)
	for _, t := range ticks {
		start := bucketStart(t.Timestamp, width)
		if n := len(bars); n > 0 && bars[n-1].Start == start {
			b := &bars[n-1]
			if t.Price > b.High {
				b.High = t.Price
			}
			if t.Price < b.Low {
				b.Low = t.Price
			}
			b.Close = t.Price
			b.Volume += t.Volume
			b.TickCount++
			continue
		}
		bars = append(bars, models.Bar{
			Symbol:    t.Symbol,
			Start:     start,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
			Volume:    t.Volume,
			TickCount: 1,
		})
	}
	return bars, nil
}

// bucketStart floors ts to a multiple of width, also for negative ts.
func bucketStart(ts, width int64) int64 {
	q := ts / width
	if ts%width != 0 && ts < 0 {
		q--
	}
	return q * width
}

// Closes extracts the close column.
func Closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

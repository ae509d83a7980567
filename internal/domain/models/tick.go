package models

import "time"

// Tick is a single trade print. Timestamp is unix milliseconds.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"ts"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

// Time returns the tick timestamp as time.Time (UTC).
func (t Tick) Time() time.Time { return time.UnixMilli(t.Timestamp).UTC() }

// Bar is an OHLCV record for one interval bucket. Start is unix milliseconds.
type Bar struct {
	Symbol    string  `json:"symbol"`
	Start     int64   `json:"start"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	TickCount int     `json:"tick_count"`
}

// AlignedPoint holds the two legs of the pair observed in the same bucket.
type AlignedPoint struct {
	Timestamp int64   `json:"ts"`
	PriceA    float64 `json:"price_a"`
	PriceB    float64 `json:"price_b"`
}

// AlignedSeries is ordered by strictly increasing Timestamp.
type AlignedSeries []AlignedPoint

// Legs splits the series into its price vectors.
func (s AlignedSeries) Legs() (a, b []float64) {
	a = make([]float64, len(s))
	b = make([]float64, len(s))
	for i, p := range s {
		a[i] = p.PriceA
		b[i] = p.PriceB
	}
	return a, b
}

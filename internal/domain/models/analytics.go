package models

import "time"

// RegressionResult is the OLS fit of price_A = Intercept + HedgeRatio*price_B.
// Stale is set when the latest cycle could not refit and this result was carried over.
type RegressionResult struct {
	HedgeRatio float64   `json:"hedge_ratio"`
	Intercept  float64   `json:"intercept"`
	RSquared   float64   `json:"r_squared"`
	SampleSize int       `json:"sample_size"`
	ComputedAt time.Time `json:"computed_at"`
	Stale      bool      `json:"stale"`
}

// SpreadPoint carries the spread and its rolling statistics.
// Nil fields mean "no signal": the window is incomplete or the rolling std is zero.
type SpreadPoint struct {
	Timestamp   int64    `json:"ts"`
	Spread      float64  `json:"spread"`
	RollingMean *float64 `json:"rolling_mean"`
	RollingStd  *float64 `json:"rolling_std"`
	ZScore      *float64 `json:"zscore"`
}

// CorrelationPoint is the rolling Pearson correlation of the two legs; nil when undefined.
type CorrelationPoint struct {
	Timestamp   int64    `json:"ts"`
	Correlation *float64 `json:"rolling_corr"`
}

// CriticalValues are ADF critical values at the 1%, 5% and 10% levels.
type CriticalValues struct {
	OnePct  float64 `json:"1%"`
	FivePct float64 `json:"5%"`
	TenPct  float64 `json:"10%"`
}

// ADFResult is the outcome of an augmented Dickey-Fuller test on the spread.
type ADFResult struct {
	TestStatistic  float64        `json:"test_statistic"`
	PValue         float64        `json:"p_value"`
	UsedLag        int            `json:"used_lag"`
	SampleSize     int            `json:"sample_size"`
	CriticalValues CriticalValues `json:"critical_values"`
	IsStationary   bool           `json:"is_stationary"`
	ComputedAt     time.Time      `json:"computed_at"`
	// SnapshotSeq is the snapshot sequence whose spread was tested.
	SnapshotSeq uint64 `json:"snapshot_seq"`
}

// SymbolStats are descriptive statistics of a symbol's closes over the analysis window.
type SymbolStats struct {
	Symbol      string  `json:"symbol"`
	Count       int     `json:"count"`
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Last        float64 `json:"last"`
	ReturnsMean float64 `json:"returns_mean"`
	ReturnsStd  float64 `json:"returns_std"`
}

// Float returns a pointer to v, for optional statistics.
func Float(v float64) *float64 { return &v }

// AnalyticsRow is the persisted form of the latest point of one cycle.
type AnalyticsRow struct {
	Timestamp   time.Time `json:"timestamp"`
	Pair        string    `json:"pair"`
	HedgeRatio  float64   `json:"hedge_ratio"`
	Intercept   float64   `json:"intercept"`
	RSquared    float64   `json:"r_squared"`
	Stale       bool      `json:"stale"`
	Spread      float64   `json:"spread"`
	ZScore      *float64  `json:"zscore"`
	Correlation *float64  `json:"rolling_corr"`
}

// SpreadSeries is the output of one spread computation, aligned index-by-index
// with the input series.
type SpreadSeries struct {
	Points      []SpreadPoint
	Correlation []CorrelationPoint
	// Values is the raw spread, same length as Points.
	Values []float64
}

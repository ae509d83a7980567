package models

import "time"

// IngestionStats are per-symbol counters kept by the tick buffer.
type IngestionStats struct {
	Symbol    string            `json:"symbol"`
	Accepted  uint64            `json:"accepted"`
	Dropped   map[string]uint64 `json:"dropped,omitempty"`
	Buffered  int               `json:"buffered"`
	LastPrice float64           `json:"last_price"`
	LastTs    int64             `json:"last_ts"`
}

// AnalyticsSnapshot is the immutable result of one analytics cycle.
// Readers must not modify it; a new snapshot replaces it wholesale.
type AnalyticsSnapshot struct {
	Sequence     uint64             `json:"sequence"`
	ComputedAt   time.Time          `json:"computed_at"`
	Pair         string             `json:"pair"`
	SymbolA      string             `json:"symbol_a"`
	SymbolB      string             `json:"symbol_b"`
	Interval     string             `json:"interval"`
	WindowSize   int                `json:"window_size"`
	Threshold    float64            `json:"alert_threshold"`
	AlignedCount int                `json:"aligned_count"`
	Regression   *RegressionResult  `json:"regression"`
	Spread       []SpreadPoint      `json:"spread"`
	Correlation  []CorrelationPoint `json:"correlation"`
	AlertState   AlertState         `json:"alert_state"`
	LastAlert    *Alert             `json:"last_alert,omitempty"`
	TickCounts   map[string]int     `json:"tick_counts"`
	Stats        []SymbolStats      `json:"stats"`
	// Status is "ok", or the reason analytics are incomplete this cycle.
	Status string `json:"status"`

	// spreadSample is the full aligned spread, kept for on-demand stationarity tests.
	spreadSample []float64
}

// WithSpreadSample attaches the full spread series used for the stationarity test.
func (s *AnalyticsSnapshot) WithSpreadSample(v []float64) *AnalyticsSnapshot {
	s.spreadSample = v
	return s
}

// SpreadSample returns the full spread series of this cycle.
func (s *AnalyticsSnapshot) SpreadSample() []float64 { return s.spreadSample }

// LatestZScore returns the most recent z-score, or nil when undefined.
func (s *AnalyticsSnapshot) LatestZScore() *float64 {
	if len(s.Spread) == 0 {
		return nil
	}
	return s.Spread[len(s.Spread)-1].ZScore
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pairpulse"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksAccepted *prometheus.CounterVec
	ticksDropped  *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	cycles        *prometheus.HistogramVec
	zscore        *prometheus.GaugeVec
	hedgeRatio    *prometheus.GaugeVec
	hedgeStale    *prometheus.GaugeVec
	alerts        *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the recorder on the default Prometheus registry. Call once per process.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_accepted_total",
			Help:      "Ticks accepted into the tick buffer",
		}, []string{"symbol"}),
		ticksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_dropped_total",
			Help:      "Malformed ticks dropped at ingestion",
		}, []string{"symbol", "reason"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Last accepted price for a symbol",
		}, []string{"symbol"}),
		cycles: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of analytics cycles by outcome",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"outcome"}),
		zscore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spread_zscore",
			Help:      "Latest spread z-score",
		}, []string{"pair"}),
		hedgeRatio: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hedge_ratio",
			Help:      "Latest OLS hedge ratio",
		}, []string{"pair"}),
		hedgeStale: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hedge_ratio_stale",
			Help:      "1 when the hedge ratio was carried over from an earlier cycle",
		}, []string{"pair"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Z-score alerts emitted",
		}, []string{"pair", "direction"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors encountered by kind",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of I/O operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordTickAccepted(symbol string) {
	r.ticksAccepted.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordTickDropped(symbol, reason string) {
	r.ticksDropped.WithLabelValues(symbol, reason).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordCycle(outcome string, seconds float64) {
	r.cycles.WithLabelValues(outcome).Observe(seconds)
}

func (r *Recorder) RecordZScore(pair string, z float64) {
	r.zscore.WithLabelValues(pair).Set(z)
}

func (r *Recorder) RecordHedgeRatio(pair string, beta float64, stale bool) {
	r.hedgeRatio.WithLabelValues(pair).Set(beta)
	v := 0.0
	if stale {
		v = 1
	}
	r.hedgeStale.WithLabelValues(pair).Set(v)
}

func (r *Recorder) RecordAlert(pair, direction string) {
	r.alerts.WithLabelValues(pair, direction).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

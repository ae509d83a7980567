package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	domsvc "PairPulse/internal/domain/service"
	"PairPulse/internal/services/alerts"
	"PairPulse/internal/services/analytics"
	"PairPulse/internal/services/tickbuffer"
	"PairPulse/pkg/logger"
)

// Cycle statuses reported in AnalyticsSnapshot.Status and the cycle metric.
const (
	StatusOK                   = "ok"
	StatusInsufficientData     = "insufficient_data"
	StatusDegenerateRegression = "degenerate_regression"
	statusFailed               = "failed"
	statusPanic                = "panic"
)

// TickSource is the read side of the tick buffer.
type TickSource interface {
	Snapshot(symbol string, w tickbuffer.Window) []models.Tick
	Stats() []models.IngestionStats
}

// AnalyticsSink receives cycle output for persistence. Both calls must not block.
type AnalyticsSink interface {
	EnqueueAnalytics(row models.AnalyticsRow) bool
	EnqueueAlert(a models.Alert) bool
}

type OrchestratorConfig struct {
	SymbolA              string
	SymbolB              string
	Interval             string
	UseBars              bool
	AlignBucket          time.Duration
	WindowSize           int
	Threshold            float64
	MinRegressionSamples int
	// Lookback limits each cycle to ticks this much older than the newest one; 0 uses the whole buffer.
	Lookback time.Duration
	// SnapshotPoints caps the spread points carried by a snapshot; 0 keeps all.
	SnapshotPoints     int
	CyclePeriod        time.Duration
	PersistAnalytics   bool
	PublishEvery       int
	AlertHistoryMaxAge time.Duration
	AlertPruneInterval time.Duration
}

func (c OrchestratorConfig) Pair() string { return c.SymbolA + "/" + c.SymbolB }

// Validate rejects configurations the cycle cannot run with. Values are never clamped.
func (c OrchestratorConfig) Validate() error {
	switch {
	case c.SymbolA == "" || c.SymbolB == "":
		return fmt.Errorf("%w: both symbols are required", models.ErrInvalidConfig)
	case c.SymbolA == c.SymbolB:
		return fmt.Errorf("%w: symbol_a and symbol_b must differ, got %q", models.ErrInvalidConfig, c.SymbolA)
	case !domrepo.IsValidInterval(domrepo.Interval(c.Interval)):
		return fmt.Errorf("%w: unsupported interval %q", models.ErrInvalidConfig, c.Interval)
	case c.WindowSize < 2:
		return fmt.Errorf("%w: window_size must be >= 2, got %d", models.ErrInvalidConfig, c.WindowSize)
	case !(c.Threshold > 0):
		return fmt.Errorf("%w: alert_threshold must be > 0, got %v", models.ErrInvalidConfig, c.Threshold)
	case c.MinRegressionSamples < 2:
		return fmt.Errorf("%w: min_regression_samples must be >= 2, got %d", models.ErrInvalidConfig, c.MinRegressionSamples)
	case c.CyclePeriod <= 0:
		return fmt.Errorf("%w: cycle_period must be positive", models.ErrInvalidConfig)
	case !c.UseBars && c.AlignBucket <= 0:
		return fmt.Errorf("%w: align_bucket must be positive when bars are disabled", models.ErrInvalidConfig)
	case c.SnapshotPoints < 0 || c.Lookback < 0 || c.PublishEvery < 0:
		return fmt.Errorf("%w: negative snapshot_points, lookback or publish_every", models.ErrInvalidConfig)
	}
	return nil
}

// AnalyticsOrchestrator runs the analytics cycle over the tick buffer and
// holds the latest snapshot for readers.
type AnalyticsOrchestrator struct {
	cfg       OrchestratorConfig
	interval  domrepo.Interval
	source    TickSource
	estimator domsvc.PairEstimator
	spread    domsvc.SpreadEngine
	adf       domsvc.StationarityTester
	monitor   *alerts.Monitor
	sink      AnalyticsSink
	publisher domrepo.SnapshotPublisher
	cache     domrepo.SnapshotCache
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time

	latest atomic.Pointer[models.AnalyticsSnapshot]

	// cycle state, guarded by cycleMu
	cycleMu       sync.Mutex
	seq           uint64
	lastReg       *models.RegressionResult
	lastPersisted int64

	adfMu   sync.Mutex
	lastADF *models.ADFResult

	pubCh   chan *models.AnalyticsSnapshot
	alertCh chan models.Alert

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type OrchestratorOption func(*AnalyticsOrchestrator)

func WithEstimator(e domsvc.PairEstimator) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) { o.estimator = e }
}

func WithSpreadEngine(s domsvc.SpreadEngine) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) { o.spread = s }
}

func WithStationarityTester(t domsvc.StationarityTester) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) { o.adf = t }
}

func WithAlertMonitor(m *alerts.Monitor) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) { o.monitor = m }
}

// WithAnalyticsSink persists analytics rows and alerts when PersistAnalytics is set.
func WithAnalyticsSink(s AnalyticsSink) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) { o.sink = s }
}

func WithSnapshotPublisher(p domrepo.SnapshotPublisher) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) { o.publisher = p }
}

func WithSnapshotCache(c domrepo.SnapshotCache) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) { o.cache = c }
}

func WithOrchestratorMetrics(m domrepo.Metrics) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithOrchestratorLogger(l *logger.Logger) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the time source used for snapshots and alerts.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *AnalyticsOrchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewAnalyticsOrchestrator(cfg OrchestratorConfig, source TickSource, opts ...OrchestratorOption) (*AnalyticsOrchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("%w: tick source is required", models.ErrInvalidConfig)
	}
	o := &AnalyticsOrchestrator{
		cfg:       cfg,
		interval:  domrepo.Interval(cfg.Interval),
		source:    source,
		estimator: analytics.NewOLSEstimator(),
		spread:    analytics.NewRollingSpread(),
		adf:       analytics.NewADFTester(analytics.DefaultMinADFSamples),
		metrics:   nopMetrics{},
		log:       logger.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
		pubCh:     make(chan *models.AnalyticsSnapshot, 1),
		alertCh:   make(chan models.Alert, 64),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.monitor == nil {
		o.monitor = alerts.NewMonitor(alerts.WithMetrics(o.metrics))
	}
	o.log = o.log.With(logger.String("component", "orchestrator"), logger.String("pair", cfg.Pair()))
	return o, nil
}

// RunCycle runs one analytics cycle and publishes its snapshot.
// Estimation shortfalls produce a snapshot with a non-ok status; other failures
// leave the previous snapshot in place.
func (o *AnalyticsOrchestrator) RunCycle(ctx context.Context) (snap *models.AnalyticsSnapshot, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = fmt.Errorf("analytics cycle panic: %v", r)
			o.metrics.RecordCycle(statusPanic, time.Since(start).Seconds())
			o.log.Error("analytics cycle panicked", logger.Any("panic", r))
		}
	}()

	snap, err = o.compute()
	if err != nil {
		o.metrics.RecordCycle(statusFailed, time.Since(start).Seconds())
		o.metrics.RecordError("cycle")
		return nil, err
	}

	o.latest.Store(snap)
	o.handOff(snap)
	o.metrics.RecordCycle(snap.Status, time.Since(start).Seconds())
	if snap.Regression != nil {
		o.metrics.RecordHedgeRatio(snap.Pair, snap.Regression.HedgeRatio, snap.Regression.Stale)
	}
	if z := snap.LatestZScore(); z != nil {
		o.metrics.RecordZScore(snap.Pair, *z)
	}
	return snap, nil
}

func (o *AnalyticsOrchestrator) compute() (*models.AnalyticsSnapshot, error) {
	now := o.now()
	pair := o.cfg.Pair()
	w := tickbuffer.Window{MaxAge: o.cfg.Lookback}
	ticksA := o.source.Snapshot(o.cfg.SymbolA, w)
	ticksB := o.source.Snapshot(o.cfg.SymbolB, w)

	series, statsA, statsB, err := o.align(ticksA, ticksB)
	if err != nil {
		return nil, err
	}

	o.seq++
	snap := &models.AnalyticsSnapshot{
		Sequence:     o.seq,
		ComputedAt:   now,
		Pair:         pair,
		SymbolA:      o.cfg.SymbolA,
		SymbolB:      o.cfg.SymbolB,
		Interval:     o.cfg.Interval,
		WindowSize:   o.cfg.WindowSize,
		Threshold:    o.cfg.Threshold,
		AlignedCount: len(series),
		TickCounts:   map[string]int{o.cfg.SymbolA: len(ticksA), o.cfg.SymbolB: len(ticksB)},
		Stats:        []models.SymbolStats{statsA, statsB},
		Status:       StatusOK,
	}

	reg, err := o.estimator.Estimate(series, o.cfg.MinRegressionSamples, now)
	switch {
	case err == nil:
		fresh := reg
		o.lastReg = &fresh
	case errors.Is(err, models.ErrInsufficientData), errors.Is(err, models.ErrDegenerateRegression):
		snap.Status = StatusInsufficientData
		if errors.Is(err, models.ErrDegenerateRegression) {
			snap.Status = StatusDegenerateRegression
		}
		if o.lastReg == nil {
			o.log.Debug("no regression yet", logger.Int("aligned", len(series)), logger.Error(err))
			snap.AlertState = o.monitor.State(pair)
			snap.LastAlert = o.monitor.Last(pair)
			return snap, nil
		}
		reg = *o.lastReg
		reg.Stale = true
	default:
		return nil, fmt.Errorf("estimate hedge ratio: %w", err)
	}
	snap.Regression = &reg

	spread, err := o.spread.Compute(series, reg, o.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("compute spread: %w", err)
	}
	snap.Spread = tail(spread.Points, o.cfg.SnapshotPoints)
	snap.Correlation = tail(spread.Correlation, o.cfg.SnapshotPoints)
	snap.WithSpreadSample(spread.Values)

	if n := len(spread.Points); n > 0 {
		lastPt := spread.Points[n-1]
		if tr := o.monitor.Evaluate(pair, lastPt.ZScore, lastPt.Spread, o.cfg.Threshold, now); tr != nil {
			o.onTransition(*tr)
		}
		o.persist(reg, lastPt, spread.Correlation[n-1])
	}
	snap.AlertState = o.monitor.State(pair)
	snap.LastAlert = o.monitor.Last(pair)
	return snap, nil
}

// align builds the aligned series and per-leg summary statistics.
func (o *AnalyticsOrchestrator) align(ticksA, ticksB []models.Tick) (models.AlignedSeries, models.SymbolStats, models.SymbolStats, error) {
	if !o.cfg.UseBars {
		series, err := analytics.AlignTicks(ticksA, ticksB, o.cfg.AlignBucket.Milliseconds())
		if err != nil {
			return nil, models.SymbolStats{}, models.SymbolStats{}, err
		}
		return series,
			analytics.Summarize(o.cfg.SymbolA, tickPrices(ticksA)),
			analytics.Summarize(o.cfg.SymbolB, tickPrices(ticksB)),
			nil
	}
	barsA, err := analytics.Resample(ticksA, o.interval)
	if err != nil {
		return nil, models.SymbolStats{}, models.SymbolStats{}, fmt.Errorf("resample %s: %w", o.cfg.SymbolA, err)
	}
	barsB, err := analytics.Resample(ticksB, o.interval)
	if err != nil {
		return nil, models.SymbolStats{}, models.SymbolStats{}, fmt.Errorf("resample %s: %w", o.cfg.SymbolB, err)
	}
	return analytics.AlignBars(barsA, barsB),
		analytics.Summarize(o.cfg.SymbolA, analytics.Closes(barsA)),
		analytics.Summarize(o.cfg.SymbolB, analytics.Closes(barsB)),
		nil
}

func (o *AnalyticsOrchestrator) onTransition(tr models.AlertTransition) {
	o.log.Info("alert state changed",
		logger.String("from", string(tr.From)),
		logger.String("to", string(tr.To)),
		logger.Float64("zscore", tr.ZScore),
	)
	if tr.Alert == nil {
		return
	}
	a := *tr.Alert
	o.log.Warn("zscore threshold breached",
		logger.String("alert_id", a.ID),
		logger.String("direction", string(a.Direction)),
		logger.Float64("zscore", a.ZScore),
		logger.Float64("spread", a.Spread),
	)
	if o.cfg.PersistAnalytics && o.sink != nil && !o.sink.EnqueueAlert(a) {
		o.metrics.RecordError("alert_persist_dropped")
	}
	if o.publisher != nil {
		select {
		case o.alertCh <- a:
		default:
			o.metrics.RecordError("alert_publish_dropped")
		}
	}
}

// persist enqueues one analytics row per new aligned timestamp.
func (o *AnalyticsOrchestrator) persist(reg models.RegressionResult, p models.SpreadPoint, c models.CorrelationPoint) {
	if !o.cfg.PersistAnalytics || o.sink == nil || p.Timestamp == o.lastPersisted {
		return
	}
	row := models.AnalyticsRow{
		Timestamp:   time.UnixMilli(p.Timestamp).UTC(),
		Pair:        o.cfg.Pair(),
		HedgeRatio:  reg.HedgeRatio,
		Intercept:   reg.Intercept,
		RSquared:    reg.RSquared,
		Stale:       reg.Stale,
		Spread:      p.Spread,
		ZScore:      p.ZScore,
		Correlation: c.Correlation,
	}
	if o.sink.EnqueueAnalytics(row) {
		o.lastPersisted = p.Timestamp
		return
	}
	o.metrics.RecordError("analytics_persist_dropped")
}

// handOff replaces any snapshot still waiting for the publish loop.
func (o *AnalyticsOrchestrator) handOff(s *models.AnalyticsSnapshot) {
	if o.publisher == nil && o.cache == nil {
		return
	}
	select {
	case o.pubCh <- s:
		return
	default:
	}
	select {
	case <-o.pubCh:
	default:
	}
	select {
	case o.pubCh <- s:
	default:
	}
}

// LatestSnapshot returns the most recent snapshot; ok is false before the first cycle.
func (o *AnalyticsOrchestrator) LatestSnapshot() (*models.AnalyticsSnapshot, bool) {
	s := o.latest.Load()
	return s, s != nil
}

// RunStationarityTest tests the spread of the latest snapshot. The result is
// reused until a newer snapshot is published.
func (o *AnalyticsOrchestrator) RunStationarityTest(ctx context.Context) (models.ADFResult, error) {
	snap := o.latest.Load()
	if snap == nil {
		return models.ADFResult{}, models.ErrNotReady
	}
	o.adfMu.Lock()
	if o.lastADF != nil && o.lastADF.SnapshotSeq == snap.Sequence {
		res := *o.lastADF
		o.adfMu.Unlock()
		return res, nil
	}
	o.adfMu.Unlock()

	start := time.Now()
	res, err := o.adf.Test(ctx, snap.SpreadSample())
	o.metrics.RecordLatency("adf", time.Since(start).Seconds())
	if err != nil {
		return models.ADFResult{}, fmt.Errorf("stationarity test: %w", err)
	}
	res.SnapshotSeq = snap.Sequence

	o.adfMu.Lock()
	if o.lastADF == nil || o.lastADF.SnapshotSeq <= res.SnapshotSeq {
		cached := res
		o.lastADF = &cached
	}
	o.adfMu.Unlock()
	return res, nil
}

// AlertHistory returns up to limit of the most recent alerts, oldest first.
func (o *AnalyticsOrchestrator) AlertHistory(limit int) []models.Alert {
	if limit <= 0 {
		return o.monitor.History()
	}
	return o.monitor.Recent(limit)
}

// PruneAlerts drops alerts older than maxAge and returns how many were removed.
func (o *AnalyticsOrchestrator) PruneAlerts(maxAge time.Duration) int {
	return o.monitor.Prune(maxAge, o.now())
}

func (o *AnalyticsOrchestrator) Stats() []models.IngestionStats { return o.source.Stats() }

func (o *AnalyticsOrchestrator) Config() OrchestratorConfig { return o.cfg }

// Start launches the cycle loop and its publishers. It returns immediately.
func (o *AnalyticsOrchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.running {
		return errors.New("orchestrator already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancel = cancel

	o.wg.Add(1)
	go o.loop(runCtx)
	if o.publisher != nil || o.cache != nil {
		o.wg.Add(1)
		go o.publishLoop(runCtx)
	}
	if o.cfg.AlertPruneInterval > 0 && o.cfg.AlertHistoryMaxAge > 0 {
		o.wg.Add(1)
		go o.pruneLoop(runCtx)
	}
	o.log.Info("orchestrator started",
		logger.Duration("cycle_period", o.cfg.CyclePeriod),
		logger.String("interval", o.cfg.Interval),
		logger.Bool("use_bars", o.cfg.UseBars),
	)
	return nil
}

// Stop cancels the loops and waits for an in-flight cycle to finish.
// A stopped orchestrator may be started again.
func (o *AnalyticsOrchestrator) Stop() {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.cancel == nil {
		return
	}
	o.cancel()
	o.cancel = nil
	o.wg.Wait()
	o.running = false
	o.log.Info("orchestrator stopped", logger.Uint64("cycles", o.Sequence()))
}

// Run is Start followed by Stop once ctx is done.
func (o *AnalyticsOrchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	o.Stop()
	return nil
}

// Sequence returns the sequence number of the latest snapshot.
func (o *AnalyticsOrchestrator) Sequence() uint64 {
	if s := o.latest.Load(); s != nil {
		return s.Sequence
	}
	return 0
}

func (o *AnalyticsOrchestrator) loop(ctx context.Context) {
	defer o.wg.Done()
	t := time.NewTicker(o.cfg.CyclePeriod)
	defer t.Stop()
	o.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			o.cycle(ctx)
		}
	}
}

func (o *AnalyticsOrchestrator) cycle(ctx context.Context) {
	if _, err := o.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		o.log.Error("analytics cycle failed", logger.Error(err))
	}
}

func (o *AnalyticsOrchestrator) publishLoop(ctx context.Context) {
	defer o.wg.Done()
	every := uint64(o.cfg.PublishEvery)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-o.pubCh:
			if o.cache != nil {
				wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
				if err := o.cache.SetSnapshot(wctx, s); err != nil {
					o.metrics.RecordError("snapshot_cache")
					o.log.Warn("cache snapshot failed", logger.Error(err))
				}
				cancel()
			}
			if o.publisher != nil && every > 0 && s.Sequence%every == 0 {
				wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
				if err := o.publisher.PublishSnapshot(wctx, s); err != nil {
					o.metrics.RecordError("snapshot_publish")
					o.log.Warn("publish snapshot failed", logger.Uint64("seq", s.Sequence), logger.Error(err))
				}
				cancel()
			}
		case a := <-o.alertCh:
			if o.publisher == nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := o.publisher.PublishAlert(wctx, a); err != nil {
				o.metrics.RecordError("alert_publish")
				o.log.Warn("publish alert failed", logger.String("alert_id", a.ID), logger.Error(err))
			}
			cancel()
		}
	}
}

func (o *AnalyticsOrchestrator) pruneLoop(ctx context.Context) {
	defer o.wg.Done()
	t := time.NewTicker(o.cfg.AlertPruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := o.PruneAlerts(o.cfg.AlertHistoryMaxAge); n > 0 {
				o.log.Info("pruned alert history", logger.Int("removed", n))
			}
		}
	}
}

func tail[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func tickPrices(ticks []models.Tick) []float64 {
	out := make([]float64, len(ticks))
	for i, t := range ticks {
		out[i] = t.Price
	}
	return out
}

type nopMetrics struct{}

func (nopMetrics) RecordTickAccepted(string)              {}
func (nopMetrics) RecordTickDropped(string, string)       {}
func (nopMetrics) RecordLastPrice(string, float64)        {}
func (nopMetrics) RecordCycle(string, float64)            {}
func (nopMetrics) RecordZScore(string, float64)           {}
func (nopMetrics) RecordHedgeRatio(string, float64, bool) {}
func (nopMetrics) RecordAlert(string, string)             {}
func (nopMetrics) RecordError(string)                     {}
func (nopMetrics) RecordLatency(string, float64)          {}

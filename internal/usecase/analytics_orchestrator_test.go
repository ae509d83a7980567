package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/alerts"
	"PairPulse/internal/services/tickbuffer"
)

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func testConfig() OrchestratorConfig {
	return OrchestratorConfig{
		SymbolA:              "ETHUSDT",
		SymbolB:              "BTCUSDT",
		Interval:             "1s",
		UseBars:              true,
		AlignBucket:          time.Second,
		WindowSize:           20,
		Threshold:            2,
		MinRegressionSamples: 10,
		CyclePeriod:          10 * time.Millisecond,
		PersistAnalytics:     true,
		PublishEvery:         1,
	}
}

// pushPair writes n one-second ticks of A = 1 + 2*B + small noise starting at startMs.
func pushPair(buf *tickbuffer.Buffer, startMs int64, n int, flatB bool) {
	for i := 0; i < n; i++ {
		ts := startMs + int64(i)*1000
		b := 100 + 5*math.Sin(float64(i)/3)
		if flatB {
			b = 100
		}
		noise := 0.01 * float64((i*7)%5-2)
		buf.Push("BTCUSDT", ts, b, 1)
		buf.Push("ETHUSDT", ts, 1+2*b+noise, 1)
	}
}

func fixedClock() func() time.Time {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestOrchestratorConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(c *OrchestratorConfig)
	}{
		{"same symbols", func(c *OrchestratorConfig) { c.SymbolB = c.SymbolA }},
		{"missing symbol", func(c *OrchestratorConfig) { c.SymbolA = "" }},
		{"bad interval", func(c *OrchestratorConfig) { c.Interval = "15m" }},
		{"window too small", func(c *OrchestratorConfig) { c.WindowSize = 1 }},
		{"zero threshold", func(c *OrchestratorConfig) { c.Threshold = 0 }},
		{"nan threshold", func(c *OrchestratorConfig) { c.Threshold = math.NaN() }},
		{"min samples", func(c *OrchestratorConfig) { c.MinRegressionSamples = 1 }},
		{"zero period", func(c *OrchestratorConfig) { c.CyclePeriod = 0 }},
		{"tick align without bucket", func(c *OrchestratorConfig) { c.UseBars = false; c.AlignBucket = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mut(&cfg)
			if _, err := NewAnalyticsOrchestrator(cfg, tickbuffer.New()); !errors.Is(err, models.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestRunCycleEstimatesHedgeRatio(t *testing.T) {
	buf := tickbuffer.New()
	pushPair(buf, 0, 60, false)
	sink := &memSink{}
	o, err := NewAnalyticsOrchestrator(testConfig(), buf, WithAnalyticsSink(sink), WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := o.LatestSnapshot(); ok {
		t.Fatalf("snapshot available before first cycle")
	}

	snap, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if snap.Status != StatusOK || snap.Regression == nil {
		t.Fatalf("unexpected status %q regression %v", snap.Status, snap.Regression)
	}
	if !almostEqual(snap.Regression.HedgeRatio, 2, 0.01) {
		t.Fatalf("hedge ratio: got %v want ~2", snap.Regression.HedgeRatio)
	}
	if snap.AlignedCount != 60 || len(snap.Spread) != 60 || len(snap.SpreadSample()) != 60 {
		t.Fatalf("aligned %d spread %d sample %d", snap.AlignedCount, len(snap.Spread), len(snap.SpreadSample()))
	}
	if snap.TickCounts["ETHUSDT"] != 60 || len(snap.Stats) != 2 {
		t.Fatalf("tick counts %v stats %d", snap.TickCounts, len(snap.Stats))
	}
	for i := 0; i < 19; i++ {
		if snap.Spread[i].ZScore != nil || snap.Correlation[i].Correlation != nil {
			t.Fatalf("point %d should be undefined during warmup", i)
		}
	}
	if snap.Spread[19].RollingMean == nil || snap.Correlation[19].Correlation == nil {
		t.Fatalf("point 19 should carry rolling statistics")
	}
	for i, p := range snap.Spread {
		want := snap.Regression.HedgeRatio
		a, b := 1+2*(100+5*math.Sin(float64(i)/3))+0.01*float64((i*7)%5-2), 100+5*math.Sin(float64(i)/3)
		if !almostEqual(p.Spread, a-want*b, 1e-9) {
			t.Fatalf("spread %d: got %v want %v", i, p.Spread, a-want*b)
		}
	}
	got, ok := o.LatestSnapshot()
	if !ok || got != snap {
		t.Fatalf("latest snapshot not published")
	}
	if len(sink.rows) != 1 {
		t.Fatalf("expected 1 persisted row, got %d", len(sink.rows))
	}

	// same data, same last timestamp: no second row
	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(sink.rows) != 1 {
		t.Fatalf("row persisted twice for the same timestamp")
	}
}

func TestRunCycleWarmupUndefined(t *testing.T) {
	buf := tickbuffer.New()
	pushPair(buf, 0, 12, false)
	o, _ := NewAnalyticsOrchestrator(testConfig(), buf)
	snap, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if snap.Status != StatusOK {
		t.Fatalf("status %q", snap.Status)
	}
	if snap.LatestZScore() != nil {
		t.Fatalf("zscore must be undefined below the window size")
	}
	if snap.AlertState != models.AlertInactive {
		t.Fatalf("alert state %q", snap.AlertState)
	}
}

func TestRunCycleInsufficientWithoutHistory(t *testing.T) {
	buf := tickbuffer.New()
	pushPair(buf, 0, 3, false)
	o, _ := NewAnalyticsOrchestrator(testConfig(), buf)
	snap, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if snap.Status != StatusInsufficientData || snap.Regression != nil || len(snap.Spread) != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := o.RunStationarityTest(context.Background()); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestRunCycleKeepsStaleRegression(t *testing.T) {
	buf := tickbuffer.New()
	pushPair(buf, 0, 40, false)
	cfg := testConfig()
	cfg.Lookback = 60 * time.Second
	o, _ := NewAnalyticsOrchestrator(cfg, buf)

	first, err := o.RunCycle(context.Background())
	if err != nil || first.Regression == nil {
		t.Fatalf("first cycle: %v", err)
	}

	// B goes flat far beyond the lookback of the earlier ticks
	pushPair(buf, 1_000_000, 40, true)
	second, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if second.Status != StatusDegenerateRegression {
		t.Fatalf("status %q", second.Status)
	}
	if second.Regression == nil || !second.Regression.Stale {
		t.Fatalf("expected stale regression, got %+v", second.Regression)
	}
	if second.Regression.HedgeRatio != first.Regression.HedgeRatio {
		t.Fatalf("stale hedge ratio changed: %v vs %v", second.Regression.HedgeRatio, first.Regression.HedgeRatio)
	}
	if first.Regression.Stale {
		t.Fatalf("earlier snapshot was mutated")
	}
	if second.Sequence != first.Sequence+1 {
		t.Fatalf("sequence %d after %d", second.Sequence, first.Sequence)
	}
}

func TestRunCycleTickAlignment(t *testing.T) {
	buf := tickbuffer.New()
	pushPair(buf, 0, 30, false)
	cfg := testConfig()
	cfg.UseBars = false
	cfg.AlignBucket = 2 * time.Second
	o, _ := NewAnalyticsOrchestrator(cfg, buf)
	snap, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if snap.AlignedCount != 15 {
		t.Fatalf("aligned count: got %d want 15", snap.AlignedCount)
	}
	if snap.Stats[0].Count != 30 {
		t.Fatalf("tick stats count: got %d want 30", snap.Stats[0].Count)
	}
}

func TestAlertSequence(t *testing.T) {
	zs := []float64{1.0, 2.5, 2.6, 1.0}
	eng := &scriptedSpread{z: zs}
	sink := &memSink{}
	pub := newMemPublisher()
	mon := alerts.NewMonitor(alerts.WithIDFunc(func() string { return "alert-1" }))
	o, _ := NewAnalyticsOrchestrator(testConfig(), tickbuffer.New(),
		WithEstimator(fixedEstimator{}),
		WithSpreadEngine(eng),
		WithAlertMonitor(mon),
		WithAnalyticsSink(sink),
		WithSnapshotPublisher(pub),
		WithClock(fixedClock()),
	)

	wantStates := []models.AlertState{models.AlertInactive, models.AlertActive, models.AlertActive, models.AlertCleared}
	for i := range zs {
		snap, err := o.RunCycle(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if snap.AlertState != wantStates[i] {
			t.Fatalf("cycle %d: state %q want %q", i, snap.AlertState, wantStates[i])
		}
	}
	hist := o.AlertHistory(0)
	if len(hist) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(hist))
	}
	a := hist[0]
	if a.ZScore != 2.5 || a.Direction != models.DirectionAbove || a.Threshold != 2 || a.Spread != 1 {
		t.Fatalf("unexpected alert %+v", a)
	}
	if len(sink.alerts) != 1 || len(sink.rows) != 4 {
		t.Fatalf("sink alerts %d rows %d", len(sink.alerts), len(sink.rows))
	}
	if n := o.PruneAlerts(time.Nanosecond); n != 0 {
		t.Fatalf("alert at clock time must not be pruned, removed %d", n)
	}
}

func TestRunCycleRecoversPanic(t *testing.T) {
	est := &panicOnce{}
	o, _ := NewAnalyticsOrchestrator(testConfig(), tickbuffer.New(),
		WithEstimator(est),
		WithSpreadEngine(&scriptedSpread{z: []float64{0}}),
	)
	if _, err := o.RunCycle(context.Background()); err == nil {
		t.Fatalf("expected panic to surface as error")
	}
	if _, ok := o.LatestSnapshot(); ok {
		t.Fatalf("panicked cycle must not publish")
	}
	snap, err := o.RunCycle(context.Background())
	if err != nil || snap.Status != StatusOK {
		t.Fatalf("cycle after panic: %v", err)
	}
}

func TestRunStationarityTestCachesPerSnapshot(t *testing.T) {
	tester := &countingTester{}
	buf := tickbuffer.New()
	pushPair(buf, 0, 40, false)
	o, _ := NewAnalyticsOrchestrator(testConfig(), buf, WithStationarityTester(tester))

	if _, err := o.RunStationarityTest(context.Background()); !errors.Is(err, models.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	snap, _ := o.RunCycle(context.Background())
	r1, err := o.RunStationarityTest(context.Background())
	if err != nil {
		t.Fatalf("adf: %v", err)
	}
	r2, _ := o.RunStationarityTest(context.Background())
	if tester.calls != 1 || r1 != r2 || r1.SnapshotSeq != snap.Sequence {
		t.Fatalf("calls %d r1 %+v r2 %+v", tester.calls, r1, r2)
	}
	if tester.lastLen != 40 {
		t.Fatalf("tested %d spread values, want 40", tester.lastLen)
	}
	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if _, err := o.RunStationarityTest(context.Background()); err != nil || tester.calls != 2 {
		t.Fatalf("new snapshot should be retested, calls %d err %v", tester.calls, err)
	}
}

func TestStartStop(t *testing.T) {
	buf := tickbuffer.New()
	pushPair(buf, 0, 40, false)
	pub := newMemPublisher()
	o, _ := NewAnalyticsOrchestrator(testConfig(), buf, WithSnapshotPublisher(pub), WithSnapshotCache(pub))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.Start(ctx); err == nil {
		t.Fatalf("second start should fail")
	}
	deadline := time.Now().Add(2 * time.Second)
	for o.Sequence() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if o.Sequence() < 3 {
		t.Fatalf("cycles did not run, seq=%d", o.Sequence())
	}
	select {
	case <-pub.cached:
	case <-time.After(2 * time.Second):
		t.Fatalf("snapshot never reached the cache")
	}
	o.Stop()
	seq := o.Sequence()
	time.Sleep(40 * time.Millisecond)
	if o.Sequence() != seq {
		t.Fatalf("cycles continued after stop: %d -> %d", seq, o.Sequence())
	}
	o.Stop()
}

func TestRestartAfterStop(t *testing.T) {
	buf := tickbuffer.New()
	pushPair(buf, 0, 40, false)
	o, _ := NewAnalyticsOrchestrator(testConfig(), buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.Stop()
	seq := o.Sequence()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for o.Sequence() <= seq && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if o.Sequence() <= seq {
		t.Fatalf("restarted orchestrator ran no cycles, seq=%d", o.Sequence())
	}
	o.Stop()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("second restart: %v", err)
	}
	o.Stop()
}

type memSink struct {
	mu     sync.Mutex
	rows   []models.AnalyticsRow
	alerts []models.Alert
}

func (s *memSink) EnqueueAnalytics(r models.AnalyticsRow) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
	return true
}

func (s *memSink) EnqueueAlert(a models.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return true
}

type memPublisher struct {
	cached chan struct{}
	once   sync.Once
}

func newMemPublisher() *memPublisher { return &memPublisher{cached: make(chan struct{})} }

func (p *memPublisher) PublishSnapshot(context.Context, *models.AnalyticsSnapshot) error { return nil }
func (p *memPublisher) PublishAlert(context.Context, models.Alert) error               { return nil }
func (p *memPublisher) Close() error                                                  { return nil }

func (p *memPublisher) SetSnapshot(context.Context, *models.AnalyticsSnapshot) error {
	p.once.Do(func() { close(p.cached) })
	return nil
}

func (p *memPublisher) GetSnapshot(context.Context) (*models.AnalyticsSnapshot, error) {
	return nil, models.ErrNotReady
}

type fixedEstimator struct{}

func (fixedEstimator) Estimate(_ models.AlignedSeries, _ int, at time.Time) (models.RegressionResult, error) {
	return models.RegressionResult{HedgeRatio: 1.5, SampleSize: 100, ComputedAt: at}, nil
}

type panicOnce struct{ done bool }

func (p *panicOnce) Estimate(_ models.AlignedSeries, _ int, at time.Time) (models.RegressionResult, error) {
	if !p.done {
		p.done = true
		panic("boom")
	}
	return models.RegressionResult{HedgeRatio: 1, ComputedAt: at}, nil
}

// scriptedSpread emits one point per call with the next scripted z-score.
type scriptedSpread struct {
	z []float64
	i int
}

func (s *scriptedSpread) Compute(_ models.AlignedSeries, _ models.RegressionResult, _ int) (models.SpreadSeries, error) {
	z := s.z[min(s.i, len(s.z)-1)]
	s.i++
	ts := int64(s.i) * 1000
	return models.SpreadSeries{
		Points:      []models.SpreadPoint{{Timestamp: ts, Spread: 1, ZScore: models.Float(z)}},
		Correlation: []models.CorrelationPoint{{Timestamp: ts}},
		Values:      []float64{1},
	}, nil
}

type countingTester struct {
	calls   int
	lastLen int
}

func (c *countingTester) Test(_ context.Context, y []float64) (models.ADFResult, error) {
	c.calls++
	c.lastLen = len(y)
	return models.ADFResult{PValue: 0.01, IsStationary: true, SampleSize: len(y)}, nil
}

package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordTickAccepted(string) {}
func (nopMetrics) RecordTickDropped(string, string) {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordCycle(string, float64) {}
func (nopMetrics) RecordZScore(string, float64) {}
func (nopMetrics) RecordHedgeRatio(string, float64, bool) {}
func (nopMetrics) RecordAlert(string, string) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLatency(string, float64) {}

type memStore struct {
	mu       sync.Mutex
	ticks    []models.Tick
	rows     []models.AnalyticsRow
	alerts   []models.Alert
	batches  int
	failures int
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) StoreTicks(_ context.Context, t []models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("transient")
	}
	s.batches++
	s.ticks = append(s.ticks, t...)
	return nil
}

func (s *memStore) StoreAnalytics(_ context.Context, r []models.AnalyticsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r...)
	return nil
}

func (s *memStore) StoreAlerts(_ context.Context, a []models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a...)
	return nil
}

func (s *memStore) QueryTicks(context.Context, string, time.Time, time.Time, int) ([]models.Tick, error) {
	return nil, nil
}

func (s *memStore) QueryAnalytics(context.Context, string, time.Time, time.Time, int) ([]models.AnalyticsRow, error) {
	return nil, nil
}

func (s *memStore) CountTicks(context.Context) (int64, error) { return 0, nil }
func (s *memStore) Symbols(context.Context) ([]string, error) { return nil, nil }
func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error { return nil }

func (s *memStore) tickCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

func TestBatchWriterFlushesOnSize(t *testing.T) {
	store := &memStore{}
	w := NewBatchWriter(store, nopMetrics{}, WithBatchSize(10), WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	for i := 0; i < 25; i++ {
		w.EnqueueTick(models.Tick{Symbol: "A", Timestamp: int64(i + 1), Price: 1})
	}
	deadline := time.Now().Add(2 * time.Second)
	for store.tickCount() < 20 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := store.tickCount(); got < 20 {
		t.Fatalf("expected two size-triggered batches, got %d ticks", got)
	}

	cancel()
	<-w.Done()
	if got := store.tickCount(); got != 25 {
		t.Fatalf("final flush: got %d ticks want 25", got)
	}
	for i, tk := range store.ticks {
		if tk.Timestamp != int64(i+1) {
			t.Fatalf("order broken at %d: %d", i, tk.Timestamp)
		}
	}
}

func TestBatchWriterFlushesOnInterval(t *testing.T) {
	store := &memStore{}
	w := NewBatchWriter(store, nopMetrics{}, WithBatchSize(1000), WithFlushInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.EnqueueAnalytics(models.AnalyticsRow{Pair: "A/B"})
	w.EnqueueAlert(models.Alert{ID: "x"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		ok := len(store.rows) == 1 && len(store.alerts) == 1
		store.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("interval flush did not happen")
}

func TestBatchWriterRetriesTransientErrors(t *testing.T) {
	store := &memStore{failures: 2}
	w := NewBatchWriter(store, nopMetrics{},
		WithBatchSize(1), WithRetry(3, time.Millisecond, 2*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	w.EnqueueTick(models.Tick{Symbol: "A", Timestamp: 1, Price: 1})
	deadline := time.Now().Add(2 * time.Second)
	for store.tickCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-w.Done()
	if store.tickCount() != 1 || w.Written() != 1 || w.Dropped() != 0 {
		t.Fatalf("written=%d dropped=%d stored=%d", w.Written(), w.Dropped(), store.tickCount())
	}
}

func TestBatchWriterDropsWhenRetriesExhausted(t *testing.T) {
	store := &memStore{failures: 100}
	w := NewBatchWriter(store, nopMetrics{},
		WithBatchSize(1), WithRetry(1, time.Millisecond, time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	w.EnqueueTick(models.Tick{Symbol: "A", Timestamp: 1, Price: 1})
	deadline := time.Now().Add(2 * time.Second)
	for w.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-w.Done()
	if w.Dropped() != 1 || w.Written() != 0 {
		t.Fatalf("written=%d dropped=%d", w.Written(), w.Dropped())
	}
}

func TestBatchWriterEnqueueNeverBlocks(t *testing.T) {
	w := NewBatchWriter(&memStore{}, nopMetrics{}, WithBufferSize(2))
	accepted := 0
	for i := 0; i < 5; i++ {
		if w.EnqueueTick(models.Tick{Symbol: "A", Timestamp: int64(i + 1), Price: 1}) {
			accepted++
		}
	}
	if accepted != 2 || w.Dropped() != 3 {
		t.Fatalf("accepted=%d dropped=%d", accepted, w.Dropped())
	}
}

package middleware

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	"PairPulse/pkg/logger"
)

// BatchWriter sits between the hot path and the TickStore. Enqueue calls never
// block; records are buffered, flushed by size or interval and retried with
// backoff. Records that cannot be buffered or written are dropped and counted.
type BatchWriter struct {
	store   domrepo.TickStore
	metrics domrepo.Metrics
	log     *logger.Logger

	batchSize     int
	flushInterval time.Duration
	maxRetries    int
	backoffMin    time.Duration
	backoffMax    time.Duration

	ticks  chan models.Tick
	rows   chan models.AnalyticsRow
	alerts chan models.Alert

	written atomic.Uint64
	dropped atomic.Uint64

	runOnce sync.Once
	done    chan struct{}
}

type BatchOption func(*BatchWriter)

func WithBatchSize(n int) BatchOption {
	return func(w *BatchWriter) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) BatchOption {
	return func(w *BatchWriter) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithRetry sets attempts after the first failure and the backoff range.
func WithRetry(max int, min, maxBackoff time.Duration) BatchOption {
	return func(w *BatchWriter) {
		if max >= 0 {
			w.maxRetries = max
		}
		if min > 0 {
			w.backoffMin = min
		}
		if maxBackoff >= min {
			w.backoffMax = maxBackoff
		}
	}
}

// WithBufferSize sets the capacity of each enqueue channel.
func WithBufferSize(n int) BatchOption {
	return func(w *BatchWriter) {
		if n > 0 {
			w.ticks = make(chan models.Tick, n)
			w.rows = make(chan models.AnalyticsRow, n)
			w.alerts = make(chan models.Alert, n)
		}
	}
}

func WithLogger(l *logger.Logger) BatchOption {
	return func(w *BatchWriter) {
		if l != nil {
			w.log = l
		}
	}
}

func NewBatchWriter(store domrepo.TickStore, metrics domrepo.Metrics, opts ...BatchOption) *BatchWriter {
	w := &BatchWriter{
		store:         store,
		metrics:       metrics,
		log:           logger.Nop(),
		batchSize:     1000,
		flushInterval: time.Second,
		maxRetries:    3,
		backoffMin:    50 * time.Millisecond,
		backoffMax:    2 * time.Second,
		ticks:         make(chan models.Tick, 10000),
		rows:          make(chan models.AnalyticsRow, 10000),
		alerts:        make(chan models.Alert, 10000),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(logger.String("component", "batch_writer"))
	return w
}

func (w *BatchWriter) EnqueueTick(t models.Tick) bool {
	select {
	case w.ticks <- t:
		return true
	default:
		w.drop("ticks", 1)
		return false
	}
}

func (w *BatchWriter) EnqueueAnalytics(r models.AnalyticsRow) bool {
	select {
	case w.rows <- r:
		return true
	default:
		w.drop("analytics", 1)
		return false
	}
}

func (w *BatchWriter) EnqueueAlert(a models.Alert) bool {
	select {
	case w.alerts <- a:
		return true
	default:
		w.drop("alerts", 1)
		return false
	}
}

// Written and Dropped count records since start.
func (w *BatchWriter) Written() uint64 { return w.written.Load() }
func (w *BatchWriter) Dropped() uint64 { return w.dropped.Load() }

// Done is closed once Run has flushed and returned.
func (w *BatchWriter) Done() <-chan struct{} { return w.done }

// Run flushes until ctx is cancelled, then drains what is buffered with one
// final flush. It must be called at most once.
func (w *BatchWriter) Run(ctx context.Context) error {
	started := false
	w.runOnce.Do(func() { started = true })
	if !started {
		return nil
	}
	defer close(w.done)

	t := time.NewTicker(w.flushInterval)
	defer t.Stop()

	var (
		ticks  = make([]models.Tick, 0, w.batchSize)
		rows   = make([]models.AnalyticsRow, 0, w.batchSize)
		alerts = make([]models.Alert, 0, w.batchSize)
	)
	flush := func(ctx context.Context) {
		if len(ticks) > 0 {
			n := len(ticks)
			w.write(ctx, "ticks", n, func(ctx context.Context) error { return w.store.StoreTicks(ctx, ticks) })
			ticks = ticks[:0]
		}
		if len(rows) > 0 {
			n := len(rows)
			w.write(ctx, "analytics", n, func(ctx context.Context) error { return w.store.StoreAnalytics(ctx, rows) })
			rows = rows[:0]
		}
		if len(alerts) > 0 {
			n := len(alerts)
			w.write(ctx, "alerts", n, func(ctx context.Context) error { return w.store.StoreAlerts(ctx, alerts) })
			alerts = alerts[:0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			ticks, rows, alerts = w.drain(ticks, rows, alerts)
			finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			flush(finalCtx)
			cancel()
			w.log.Info("batch writer stopped",
				logger.Uint64("written", w.Written()),
				logger.Uint64("dropped", w.Dropped()),
			)
			return nil
		case tk := <-w.ticks:
			ticks = append(ticks, tk)
			if len(ticks) >= w.batchSize {
				flush(ctx)
			}
		case r := <-w.rows:
			rows = append(rows, r)
			if len(rows) >= w.batchSize {
				flush(ctx)
			}
		case a := <-w.alerts:
			alerts = append(alerts, a)
			if len(alerts) >= w.batchSize {
				flush(ctx)
			}
		case <-t.C:
			flush(ctx)
		}
	}
}

func (w *BatchWriter) drain(ticks []models.Tick, rows []models.AnalyticsRow, alerts []models.Alert) ([]models.Tick, []models.AnalyticsRow, []models.Alert) {
	for {
		select {
		case tk := <-w.ticks:
			ticks = append(ticks, tk)
		case r := <-w.rows:
			rows = append(rows, r)
		case a := <-w.alerts:
			alerts = append(alerts, a)
		default:
			return ticks, rows, alerts
		}
	}
}

// write retries fn with exponential backoff. A batch that still fails is
// dropped. The store must not retain the slice passed to fn.
func (w *BatchWriter) write(ctx context.Context, kind string, n int, fn func(context.Context) error) {
	start := time.Now()
	backoff := w.backoffMin
	var err error
retry:
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			w.written.Add(uint64(n))
			w.metrics.RecordLatency("persist_"+kind, time.Since(start).Seconds())
			return
		}
		w.metrics.RecordError("persist_" + kind)
		if attempt >= w.maxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			break retry
		}
		backoff = min(backoff*2, w.backoffMax)
	}
	w.log.Error("batch dropped after retries",
		logger.String("kind", kind),
		logger.Int("records", n),
		logger.Error(err),
	)
	w.drop(kind, n)
}

func (w *BatchWriter) drop(kind string, n int) {
	w.dropped.Add(uint64(n))
	w.metrics.RecordError("persist_drop_" + kind)
}

package tickbuffer

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
)

// Drop reasons reported through metrics and Stats.
const (
	DropEmptySymbol  = "empty_symbol"
	DropBadTimestamp = "bad_timestamp"
	DropBadPrice     = "bad_price"
	DropBadVolume    = "bad_volume"
	DropOutOfOrder   = "out_of_order"
)

const (
	defaultMaxCount = 10000
	// compact the backing slice once this many evicted slots accumulate
	compactThreshold = 1024
)

// Window bounds a snapshot. Zero fields mean "no bound".
type Window struct {
	MaxCount int
	MaxAge   time.Duration
}

// Buffer is a per-symbol, bounded, append-only tick store.
// Appends to different symbols never contend; snapshots copy under the symbol lock.
type Buffer struct {
	maxCount  int
	maxAge    time.Duration
	tolerance time.Duration
	metrics   domrepo.Metrics

	mu      sync.RWMutex
	symbols map[string]*series

	// ticks that could not be attributed to any symbol
	noSymbol atomic.Uint64
}

type series struct {
	mu       sync.Mutex
	ticks    []models.Tick
	head     int
	accepted uint64
	dropped  map[string]uint64
}

type Option func(*Buffer)

// WithMaxCount bounds each symbol to the most recent n ticks.
func WithMaxCount(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.maxCount = n
		}
	}
}

// WithMaxAge evicts ticks older than d relative to the newest tick of the symbol.
func WithMaxAge(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.maxAge = d
		}
	}
}

// WithOutOfOrderTolerance accepts late ticks within d, clamped to the last timestamp.
func WithOutOfOrderTolerance(d time.Duration) Option {
	return func(b *Buffer) {
		if d >= 0 {
			b.tolerance = d
		}
	}
}

// WithMetrics reports accepted and dropped ticks.
func WithMetrics(m domrepo.Metrics) Option {
	return func(b *Buffer) { b.metrics = m }
}

// New creates a tick buffer.
func New(opts ...Option) *Buffer {
	b := &Buffer{
		maxCount: defaultMaxCount,
		symbols:  make(map[string]*series),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push is the fire-and-forget ingestion entry point.
func (b *Buffer) Push(symbol string, ts int64, price, volume float64) {
	b.Append(models.Tick{Symbol: symbol, Timestamp: ts, Price: price, Volume: volume})
}

// Append stores t, or drops and counts it when malformed. It reports whether t was kept.
func (b *Buffer) Append(t models.Tick) bool {
	if t.Symbol == "" {
		b.noSymbol.Add(1)
		b.recordDrop("", DropEmptySymbol)
		return false
	}
	s := b.lookup(t.Symbol)

	s.mu.Lock()
	reason := s.admit(&t, b.tolerance)
	if reason != "" {
		s.dropped[reason]++
		s.mu.Unlock()
		b.recordDrop(t.Symbol, reason)
		return false
	}
	s.ticks = append(s.ticks, t)
	s.accepted++
	s.evict(b.maxCount, b.maxAge)
	s.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordTickAccepted(t.Symbol)
		b.metrics.RecordLastPrice(t.Symbol, t.Price)
	}
	return true
}

// admit validates t and clamps tolerated late timestamps. Caller holds s.mu.
func (s *series) admit(t *models.Tick, tolerance time.Duration) string {
	if t.Timestamp <= 0 {
		return DropBadTimestamp
	}
	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return DropBadPrice
	}
	if t.Volume < 0 || math.IsNaN(t.Volume) || math.IsInf(t.Volume, 0) {
		return DropBadVolume
	}
	if n := len(s.ticks); n > s.head {
		last := s.ticks[n-1].Timestamp
		if t.Timestamp < last {
			if last-t.Timestamp > tolerance.Milliseconds() {
				return DropOutOfOrder
			}
			t.Timestamp = last
		}
	}
	return ""
}

// evict drops the oldest ticks beyond the count and age horizons. Caller holds s.mu.
func (s *series) evict(maxCount int, maxAge time.Duration) {
	if maxCount > 0 && len(s.ticks)-s.head > maxCount {
		s.head = len(s.ticks) - maxCount
	}
	if maxAge > 0 {
		cutoff := s.ticks[len(s.ticks)-1].Timestamp - maxAge.Milliseconds()
		for s.head < len(s.ticks) && s.ticks[s.head].Timestamp < cutoff {
			s.head++
		}
	}
	if s.head >= compactThreshold && s.head >= len(s.ticks)/2 {
		n := copy(s.ticks, s.ticks[s.head:])
		clear(s.ticks[n:])
		s.ticks = s.ticks[:n]
		s.head = 0
	}
}

// Snapshot returns a copy of the symbol's ticks within w, oldest first.
// MaxAge is measured back from the newest buffered tick, not the wall clock.
func (b *Buffer) Snapshot(symbol string, w Window) []models.Tick {
	b.mu.RLock()
	s, ok := b.symbols[symbol]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	live := s.ticks[s.head:]
	if w.MaxCount > 0 && len(live) > w.MaxCount {
		live = live[len(live)-w.MaxCount:]
	}
	if w.MaxAge > 0 && len(live) > 0 {
		cutoff := live[len(live)-1].Timestamp - w.MaxAge.Milliseconds()
		i := sort.Search(len(live), func(i int) bool { return live[i].Timestamp >= cutoff })
		live = live[i:]
	}
	out := make([]models.Tick, len(live))
	copy(out, live)
	s.mu.Unlock()
	return out
}

// Len returns the number of buffered ticks for symbol.
func (b *Buffer) Len(symbol string) int {
	b.mu.RLock()
	s, ok := b.symbols[symbol]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks) - s.head
}

// Symbols lists symbols seen so far, sorted.
func (b *Buffer) Symbols() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.symbols))
	for sym := range b.symbols {
		out = append(out, sym)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Stats returns per-symbol ingestion counters. Ticks dropped for a missing
// symbol are reported last under an empty symbol.
func (b *Buffer) Stats() []models.IngestionStats {
	syms := b.Symbols()
	out := make([]models.IngestionStats, 0, len(syms))
	for _, sym := range syms {
		b.mu.RLock()
		s := b.symbols[sym]
		b.mu.RUnlock()

		s.mu.Lock()
		st := models.IngestionStats{
			Symbol:   sym,
			Accepted: s.accepted,
			Buffered: len(s.ticks) - s.head,
		}
		if len(s.dropped) > 0 {
			st.Dropped = make(map[string]uint64, len(s.dropped))
			for k, v := range s.dropped {
				st.Dropped[k] = v
			}
		}
		if n := len(s.ticks); n > s.head {
			st.LastPrice = s.ticks[n-1].Price
			st.LastTs = s.ticks[n-1].Timestamp
		}
		s.mu.Unlock()
		out = append(out, st)
	}
	if n := b.noSymbol.Load(); n > 0 {
		out = append(out, models.IngestionStats{Dropped: map[string]uint64{DropEmptySymbol: n}})
	}
	return out
}

func (b *Buffer) lookup(symbol string) *series {
	b.mu.RLock()
	s, ok := b.symbols[symbol]
	b.mu.RUnlock()
	if ok {
		return s
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok = b.symbols[symbol]; ok {
		return s
	}
	s = &series{dropped: make(map[string]uint64)}
	b.symbols[symbol] = s
	return s
}

func (b *Buffer) recordDrop(symbol, reason string) {
	if b.metrics != nil {
		b.metrics.RecordTickDropped(symbol, reason)
	}
}

package tickbuffer

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
)

func TestAppendEvictsByCount(t *testing.T) {
	b := New(WithMaxCount(10000))
	for i := 1; i <= 15000; i++ {
		b.Push("btcusdt", int64(i), float64(i), 1)
	}
	got := b.Snapshot("btcusdt", Window{})
	if len(got) != 10000 {
		t.Fatalf("expected 10000 ticks, got %d", len(got))
	}
	for i, tk := range got {
		if want := int64(5001 + i); tk.Timestamp != want {
			t.Fatalf("tick %d: ts %d want %d", i, tk.Timestamp, want)
		}
	}
	if b.Len("btcusdt") != 10000 {
		t.Fatalf("len %d", b.Len("btcusdt"))
	}
}

func TestAppendEvictsByAge(t *testing.T) {
	b := New(WithMaxCount(1000), WithMaxAge(10*time.Second))
	for i := 0; i < 100; i++ {
		b.Push("ethusdt", int64(1000+i*1000), 100, 1)
	}
	got := b.Snapshot("ethusdt", Window{})
	newest := got[len(got)-1].Timestamp
	if got[0].Timestamp < newest-10_000 {
		t.Fatalf("tick older than horizon retained: %d (newest %d)", got[0].Timestamp, newest)
	}
	if len(got) != 11 {
		t.Fatalf("expected 11 ticks inside a 10s horizon, got %d", len(got))
	}
}

func TestSnapshotWindow(t *testing.T) {
	b := New()
	for i := 1; i <= 100; i++ {
		b.Push("x", int64(i*100), float64(i), 0)
	}
	if got := b.Snapshot("x", Window{MaxCount: 5}); len(got) != 5 || got[0].Timestamp != 9600 {
		t.Fatalf("count window: %+v", got)
	}
	if got := b.Snapshot("x", Window{MaxAge: time.Second}); len(got) != 11 || got[0].Timestamp != 9000 {
		t.Fatalf("age window: len=%d first=%d", len(got), got[0].Timestamp)
	}
	if got := b.Snapshot("missing", Window{}); got != nil {
		t.Fatalf("expected nil for unknown symbol")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New()
	b.Push("x", 1, 10, 0)
	snap := b.Snapshot("x", Window{})
	snap[0].Price = 999
	if again := b.Snapshot("x", Window{}); again[0].Price != 10 {
		t.Fatalf("snapshot aliases buffer storage")
	}
}

func TestMalformedTicksDropped(t *testing.T) {
	b := New(WithOutOfOrderTolerance(50 * time.Millisecond))
	cases := []struct {
		tick models.Tick
		ok   bool
	}{
		{models.Tick{Symbol: "x", Timestamp: 1000, Price: 10}, true},
		{models.Tick{Symbol: "x", Timestamp: 1001, Price: 0}, false},
		{models.Tick{Symbol: "x", Timestamp: 1001, Price: -1}, false},
		{models.Tick{Symbol: "x", Timestamp: 1001, Price: math.NaN()}, false},
		{models.Tick{Symbol: "x", Timestamp: 1001, Price: 10, Volume: -1}, false},
		{models.Tick{Symbol: "x", Timestamp: 0, Price: 10}, false},
		{models.Tick{Symbol: "", Timestamp: 1001, Price: 10}, false},
		{models.Tick{Symbol: "x", Timestamp: 900, Price: 10}, false},
		{models.Tick{Symbol: "x", Timestamp: 970, Price: 11}, true},
		{models.Tick{Symbol: "x", Timestamp: 1000, Price: 12}, true},
	}
	for i, c := range cases {
		if got := b.Append(c.tick); got != c.ok {
			t.Fatalf("case %d: Append=%v want %v", i, got, c.ok)
		}
	}
	got := b.Snapshot("x", Window{})
	if len(got) != 3 {
		t.Fatalf("expected 3 accepted ticks, got %d", len(got))
	}
	if got[1].Timestamp != 1000 {
		t.Fatalf("late tick not clamped: %d", got[1].Timestamp)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Fatalf("timestamps went backwards")
		}
	}

	stats := b.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected stats for one symbol plus unattributed drops, got %d", len(stats))
	}
	if un := stats[1]; un.Symbol != "" || un.Accepted != 0 || un.Dropped[DropEmptySymbol] != 1 {
		t.Fatalf("unexpected unattributed stats %+v", un)
	}
	st := stats[0]
	if st.Accepted != 3 || st.LastPrice != 12 || st.Buffered != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.Dropped[DropBadPrice] != 3 || st.Dropped[DropBadVolume] != 1 || st.Dropped[DropBadTimestamp] != 1 || st.Dropped[DropOutOfOrder] != 1 {
		t.Fatalf("unexpected drop counters %+v", st.Dropped)
	}
}

func TestStatsOmitUnattributedWhenClean(t *testing.T) {
	b := New()
	b.Push("x", 1000, 10, 1)
	if stats := b.Stats(); len(stats) != 1 || stats[0].Symbol != "x" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	b.Push("", 1000, 10, 1)
	b.Push("", 1001, 10, 1)
	stats := b.Stats()
	if len(stats) != 2 || stats[1].Dropped[DropEmptySymbol] != 2 {
		t.Fatalf("empty-symbol drops not reported: %+v", stats)
	}
	if len(b.Symbols()) != 1 {
		t.Fatalf("empty symbol must not create a series: %v", b.Symbols())
	}
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	const (
		producers = 8
		perSymbol = 5000
		readers   = 4
	)
	b := New(WithMaxCount(perSymbol))
	var wg sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for p := 0; p < producers; p++ {
					snap := b.Snapshot(fmt.Sprintf("sym%d", p), Window{MaxCount: 100})
					for i := 1; i < len(snap); i++ {
						if snap[i].Timestamp <= snap[i-1].Timestamp {
							t.Errorf("snapshot out of order")
							return
						}
					}
				}
			}
		}()
	}

	var pw sync.WaitGroup
	for p := 0; p < producers; p++ {
		pw.Add(1)
		go func(p int) {
			defer pw.Done()
			sym := fmt.Sprintf("sym%d", p)
			for i := 1; i <= perSymbol; i++ {
				b.Push(sym, int64(i), float64(i), 1)
			}
		}(p)
	}
	pw.Wait()
	close(done)
	wg.Wait()

	for p := 0; p < producers; p++ {
		sym := fmt.Sprintf("sym%d", p)
		got := b.Snapshot(sym, Window{})
		if len(got) != perSymbol {
			t.Fatalf("%s: lost updates, have %d", sym, len(got))
		}
		if got[len(got)-1].Timestamp != perSymbol {
			t.Fatalf("%s: last tick %d", sym, got[len(got)-1].Timestamp)
		}
	}
}

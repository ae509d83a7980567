package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memPublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *memPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorAggregatesRepeats(t *testing.T) {
	pub := &memPublisher{}
	l := Nop()
	l.AttachCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 5; i++ {
		l.Error("store write failed", String("table", "ticks"), Error(errors.New("timeout")))
	}
	l.Warn("reconnecting", Int("attempt", 1))
	l.Info("not collected")

	pending := l.collector.Snapshot()
	if len(pending) != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", len(pending))
	}
	for _, e := range pending {
		if e.Level == "error" && e.Count != 5 {
			t.Fatalf("expected 5 repeats of the error entry, got %+v", e)
		}
		if e.Level == "warn" && e.Count != 1 {
			t.Fatalf("unexpected warn entry %+v", e)
		}
	}

	l.DetachCollector()
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 || len(pub.batches[0]) != 2 || pub.topic != "logs" {
		t.Fatalf("expected one flushed batch of 2 entries on close, got %+v", pub.batches)
	}
}

func TestCollectorFlushesOnThreshold(t *testing.T) {
	pub := &memPublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 3, Publisher: pub})
	for i := 0; i < 3; i++ {
		c.AddLog("error", "boom", map[string]interface{}{"i": i}, "x.go:1")
	}
	c.Close()
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 || len(pub.batches[0]) != 3 {
		t.Fatalf("expected threshold flush of 3 entries, got %+v", pub.batches)
	}
	// Close is idempotent
	c.Close()
}

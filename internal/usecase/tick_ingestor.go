package usecase

import (
	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
)

// TickWriter queues accepted ticks for persistence without blocking.
type TickWriter interface {
	EnqueueTick(t models.Tick) bool
}

// TickIngestor is the single entry point for ticks from any source: the
// buffer decides acceptance, accepted ticks are queued for storage.
type TickIngestor struct {
	sink    drepo.TickSink
	writer  TickWriter
	metrics drepo.Metrics
}

// NewTickIngestor builds an ingestor; writer may be nil when storage is disabled.
func NewTickIngestor(sink drepo.TickSink, writer TickWriter, metrics drepo.Metrics) *TickIngestor {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &TickIngestor{sink: sink, writer: writer, metrics: metrics}
}

// Ingest reports whether the buffer accepted t.
func (i *TickIngestor) Ingest(t models.Tick) bool {
	if !i.sink.Append(t) {
		return false
	}
	if i.writer != nil && !i.writer.EnqueueTick(t) {
		i.metrics.RecordError("tick_persist_dropped")
	}
	return true
}

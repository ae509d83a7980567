package usecase

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	pkgkafka "PairPulse/pkg/kafka"
	"PairPulse/pkg/util"
)

// KafkaTicksHandler feeds ticks published on a Kafka topic into the ingestor.
type KafkaTicksHandler struct {
	topic   string
	ingest  *TickIngestor
	metrics drepo.Metrics
}

func NewKafkaTicksHandler(topic string, ingest *TickIngestor, metrics drepo.Metrics) *KafkaTicksHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &KafkaTicksHandler{topic: topic, ingest: ingest, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// tickMessage accepts both the long form {symbol, ts, price, volume} and the
// short form {symbol, t, c, v}.
type tickMessage struct {
	Symbol string   `json:"symbol"`
	TS     *int64   `json:"ts"`
	T      *int64   `json:"t"`
	Price  *float64 `json:"price"`
	C      *float64 `json:"c"`
	Volume *float64 `json:"volume"`
	V      *float64 `json:"v"`
}

func (m tickMessage) tick() (models.Tick, bool) {
	ts := firstOf(m.TS, m.T)
	px := firstOf(m.Price, m.C)
	if ts == nil || px == nil {
		return models.Tick{}, false
	}
	t := models.Tick{Symbol: util.NormalizeSymbol(m.Symbol), Timestamp: *ts, Price: *px}
	// seconds are promoted to milliseconds
	if t.Timestamp > 0 && t.Timestamp < 1e11 {
		t.Timestamp *= 1000
	}
	if v := firstOf(m.Volume, m.V); v != nil {
		t.Volume = *v
	}
	return t, true
}

// Handle never returns an error for malformed payloads: they are counted and
// dropped since redelivery cannot fix them.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m tickMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordTickDropped("unknown", "malformed")
		return nil
	}
	t, ok := m.tick()
	if !ok {
		h.metrics.RecordTickDropped(util.NormalizeSymbol(m.Symbol), "malformed")
		return nil
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(t.Time()).Seconds())
	h.ingest.Ingest(t)
	return nil
}

// Hook measures how long ticks waited on the topic and counts handler failures.
func (h *KafkaTicksHandler) Hook() pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		After: func(_ context.Context, _ string, km kafkago.Message, err error) {
			if err == nil && !km.Time.IsZero() {
				h.metrics.RecordLatency("kafka_queue", time.Since(km.Time).Seconds())
			}
		},
		Err: func(context.Context, string, kafkago.Message, error) {
			h.metrics.RecordError("kafka_ticks")
		},
	}
}

func firstOf[T any](vs ...*T) *T {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)

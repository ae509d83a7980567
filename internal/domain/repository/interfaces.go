package repository

import (
	"context"
	"time"

	"PairPulse/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TickSink accepts ticks from ingestion. Append never blocks on analytics and
// reports whether the tick was accepted.
type TickSink interface {
	Append(t models.Tick) bool
}

// TickStore persists ticks and derived analytics. Writes are append-only.
type TickStore interface {
	Init(ctx context.Context) error
	StoreTicks(ctx context.Context, ticks []models.Tick) error
	StoreAnalytics(ctx context.Context, rows []models.AnalyticsRow) error
	StoreAlerts(ctx context.Context, alerts []models.Alert) error
	// QueryTicks returns ticks in [from, to] ordered by timestamp ascending.
	QueryTicks(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Tick, error)
	QueryAnalytics(ctx context.Context, pair string, from, to time.Time, limit int) ([]models.AnalyticsRow, error)
	CountTicks(ctx context.Context) (int64, error)
	Symbols(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotPublisher fans out analytics results to downstream consumers.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, s *models.AnalyticsSnapshot) error
	PublishAlert(ctx context.Context, a models.Alert) error
	Close() error
}

// SnapshotCache keeps the latest snapshot for out-of-process readers.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, s *models.AnalyticsSnapshot) error
	GetSnapshot(ctx context.Context) (*models.AnalyticsSnapshot, error)
}

// ArchiveWriter stores export payloads and returns the object key.
type ArchiveWriter interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type Metrics interface {
	RecordTickAccepted(symbol string)
	RecordTickDropped(symbol, reason string)
	RecordLastPrice(symbol string, price float64)
	RecordCycle(outcome string, seconds float64)
	RecordZScore(pair string, z float64)
	RecordHedgeRatio(pair string, beta float64, stale bool)
	RecordAlert(pair string, direction string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

package repository

import (
	"context"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
)

type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaSnapshotPublisher publishes snapshots and alerts keyed by pair.
type KafkaSnapshotPublisher struct {
	producer       producer
	snapshotsTopic string
	alertsTopic    string
}

var _ domrepo.SnapshotPublisher = (*KafkaSnapshotPublisher)(nil)

func NewKafkaSnapshotPublisher(p producer, snapshotsTopic, alertsTopic string) *KafkaSnapshotPublisher {
	return &KafkaSnapshotPublisher{producer: p, snapshotsTopic: snapshotsTopic, alertsTopic: alertsTopic}
}

// snapshotMessage is the slim wire form; full series stay in-process.
type snapshotMessage struct {
	Sequence   uint64                   `json:"seq"`
	ComputedAt int64                    `json:"computed_at"`
	Pair       string                   `json:"pair"`
	Interval   string                   `json:"interval"`
	Status     string                   `json:"status"`
	Regression *models.RegressionResult `json:"regression,omitempty"`
	Latest     *models.SpreadPoint      `json:"latest,omitempty"`
	AlertState models.AlertState        `json:"alert_state"`
}

func (p *KafkaSnapshotPublisher) PublishSnapshot(ctx context.Context, s *models.AnalyticsSnapshot) error {
	if s == nil || p.snapshotsTopic == "" {
		return nil
	}
	msg := snapshotMessage{
		Sequence:   s.Sequence,
		ComputedAt: s.ComputedAt.UnixMilli(),
		Pair:       s.Pair,
		Interval:   s.Interval,
		Status:     s.Status,
		Regression: s.Regression,
		AlertState: s.AlertState,
	}
	if n := len(s.Spread); n > 0 {
		last := s.Spread[n-1]
		msg.Latest = &last
	}
	return p.producer.Publish(ctx, p.snapshotsTopic, []byte(s.Pair), msg)
}

func (p *KafkaSnapshotPublisher) PublishAlert(ctx context.Context, a models.Alert) error {
	if p.alertsTopic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.alertsTopic, []byte(a.Pair), a)
}

func (p *KafkaSnapshotPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

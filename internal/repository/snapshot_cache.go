package repository

import (
	"context"
	"errors"
	"time"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	"PairPulse/pkg/cache"
)

// SnapshotCache stores the latest snapshot under "snapshot:<pair>" in any
// cache.Service, normally Redis.
type SnapshotCache struct {
	c    cache.Service
	pair string
	ttl  time.Duration
}

var _ domrepo.SnapshotCache = (*SnapshotCache)(nil)

func NewSnapshotCache(c cache.Service, pair string, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{c: c, pair: pair, ttl: ttl}
}

func (s *SnapshotCache) key() string { return "snapshot:" + s.pair }

func (s *SnapshotCache) SetSnapshot(ctx context.Context, snap *models.AnalyticsSnapshot) error {
	if snap == nil {
		return nil
	}
	return s.c.Set(ctx, s.key(), snap, s.ttl)
}

// GetSnapshot returns models.ErrNotReady when nothing is cached.
func (s *SnapshotCache) GetSnapshot(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	var snap models.AnalyticsSnapshot
	if err := s.c.Get(ctx, s.key(), &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrNotReady
		}
		return nil, err
	}
	return &snap, nil
}

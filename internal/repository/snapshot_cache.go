package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/pkg/cache"
)

const metricsKey = "snapshot:metrics:latest"

// CacheSnapshotStore implements SnapshotCache on top of the cache service
// (memory, redis, or layered, per configuration).
type CacheSnapshotStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewCacheSnapshotStore creates the snapshot cache with the given entry TTL.
func NewCacheSnapshotStore(c cache.Service, ttl time.Duration) *CacheSnapshotStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CacheSnapshotStore{cache: c, ttl: ttl}
}

func (s *CacheSnapshotStore) PutMetrics(ctx context.Context, m *models.ResilienceMetrics) error {
	if m == nil {
		return fmt.Errorf("nil metrics")
	}
	return s.cache.Set(ctx, metricsKey, m, s.ttl)
}

func (s *CacheSnapshotStore) GetMetrics(ctx context.Context) (*models.ResilienceMetrics, error) {
	var m models.ResilienceMetrics
	if err := s.cache.Get(ctx, metricsKey, &m); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("%w: metrics snapshot", models.ErrNotFound)
		}
		return nil, err
	}
	return &m, nil
}

var _ domrepo.SnapshotCache = (*CacheSnapshotStore)(nil)

package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snapbite/mealscan/internal/ai"
)

// Store caches detection results keyed by content hash, so re-submitting the
// same photo (or text) does not spend another vision call. Cache misses and
// redis outages both fall through to the provider.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) GetDetection(ctx context.Context, key string) (ai.DetectionResult, bool) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return ai.DetectionResult{}, false
	}
	var res ai.DetectionResult
	if err := json.Unmarshal(b, &res); err != nil {
		return ai.DetectionResult{}, false
	}
	return res, true
}

func (s *Store) SetDetection(ctx context.Context, key string, res ai.DetectionResult) {
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	// best effort; a failed write only costs a future cache miss
	_ = s.rdb.Set(ctx, key, b, s.ttl).Err()
}

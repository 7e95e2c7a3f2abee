package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/bryanwahyu/imagesight/internal/domain/images"
)

const keyPrefix = "history:"

// HistoryCache cache layer di depan Repository.Latest.
// Entry di-key per limit dan di-invalidate setiap ada record baru.
type HistoryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *HistoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &HistoryCache{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func historyKey(limit int) string {
	return fmt.Sprintf("%s%d", keyPrefix, limit)
}

// Get returns (nil, nil) on cache miss
func (c *HistoryCache) Get(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	raw, err := c.rdb.Get(ctx, historyKey(limit)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []*domain.AnalysisRecord
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		// entry rusak diperlakukan seperti miss
		return nil, err
	}
	return recs, nil
}

func (c *HistoryCache) Set(ctx context.Context, limit int, recs []*domain.AnalysisRecord) error {
	b, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, historyKey(limit), b, c.ttl).Err()
}

// Invalidate drop semua entry history, dipanggil setelah Save record baru
func (c *HistoryCache) Invalidate(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Health ping untuk health check endpoint
func (c *HistoryCache) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *HistoryCache) Close() error { return c.rdb.Close() }

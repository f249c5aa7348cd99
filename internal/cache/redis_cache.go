package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"lapaksayur/backend/internal/domain"
)

const defaultKeyPrefix = "lapaksayur:reports"

type RedisReportCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisReportCache(addr string, password string, db int, ttl time.Duration) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client, prefix: defaultKeyPrefix, ttl: ttl}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) generationKey() string {
	return c.prefix + ":generation"
}

func (c *RedisReportCache) entryKey(kind string, generation int64, key string) string {
	return fmt.Sprintf("%s:%d:%s:%s", c.prefix, generation, kind, key)
}

func (c *RedisReportCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.generationKey()).Err()
}

func (c *RedisReportCache) GetSummary(ctx context.Context, generation int64, key string) (*domain.PeriodSummary, bool, error) {
	var summary domain.PeriodSummary
	found, err := c.get(ctx, c.entryKey("summary", generation, key), &summary)
	if !found || err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisReportCache) SetSummary(ctx context.Context, generation int64, key string, value *domain.PeriodSummary) error {
	if value == nil {
		return nil
	}
	return c.set(ctx, c.entryKey("summary", generation, key), value)
}

func (c *RedisReportCache) GetDashboard(ctx context.Context, generation int64, key string) (*domain.DashboardStats, bool, error) {
	var stats domain.DashboardStats
	found, err := c.get(ctx, c.entryKey("dashboard", generation, key), &stats)
	if !found || err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisReportCache) SetDashboard(ctx context.Context, generation int64, key string, value *domain.DashboardStats) error {
	if value == nil {
		return nil
	}
	return c.set(ctx, c.entryKey("dashboard", generation, key), value)
}

func (c *RedisReportCache) get(ctx context.Context, key string, dst any) (bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisReportCache) set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lapaksayur/backend/internal/domain"
)

func TestNoopReportCacheNeverHits(t *testing.T) {
	ctx := context.Background()
	var c ReportCache = NoopReportCache{}

	require.NoError(t, c.SetSummary(ctx, 0, "daily", &domain.PeriodSummary{Period: domain.PeriodDaily}))
	got, ok, err := c.GetSummary(ctx, 0, "daily")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	require.NoError(t, c.Invalidate(ctx))
}

func TestRedisEntryKeyIncludesGeneration(t *testing.T) {
	c := &RedisReportCache{prefix: defaultKeyPrefix}
	assert.Equal(t, "lapaksayur:reports:7:summary:daily:20261018", c.entryKey("summary", 7, "daily:20261018"))
	assert.NotEqual(t, c.entryKey("dashboard", 1, "x"), c.entryKey("dashboard", 2, "x"))
}

func TestRedisReportCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("LAPAKSAYUR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LAPAKSAYUR_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := NewRedisReportCache(addr, "", 0, time.Minute)
	c.prefix = "lapaksayur:test:" + time.Now().Format("150405.000000")
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	gen, err := c.Generation(ctx)
	require.NoError(t, err)

	summary := &domain.PeriodSummary{
		Period:       domain.PeriodDaily,
		TotalRevenue: decimal.RequireFromString("12.00"),
		NetProfit:    decimal.RequireFromString("-3.25"),
	}
	require.NoError(t, c.SetSummary(ctx, gen, "daily", summary))

	got, ok, err := c.GetSummary(ctx, gen, "daily")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.NetProfit.Equal(summary.NetProfit))

	require.NoError(t, c.Invalidate(ctx))
	next, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)

	_, ok, err = c.GetSummary(ctx, next, "daily")
	require.NoError(t, err)
	assert.False(t, ok)
}

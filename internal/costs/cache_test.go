package costs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, 10*time.Minute), mr
}

func TestCacheRoundTripsRollups(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	rollups := []QuarterRollup{{
		Quarter:               1,
		Label:                 "FY 2017 Q1",
		PlannedCount:          30,
		CompletedCount:        15,
		AccomplishmentPercent: decimal.NewFromInt(50),
		Cost:                  decimal.RequireFromString("12500.75"),
	}}

	_, ok := cache.GetRollup(ctx, nil, 2017)
	require.False(t, ok)

	cache.SetRollup(ctx, nil, 2017, rollups)

	got, ok := cache.GetRollup(ctx, nil, 2017)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, "FY 2017 Q1", got[0].Label)
	require.True(t, got[0].Cost.Equal(rollups[0].Cost))
}

func TestCacheScopesByWorkshop(t *testing.T) {
	cache, mr := testCache(t)
	ctx := context.Background()
	shopID := uuid.New()

	cache.SetRollup(ctx, &shopID, 2017, []QuarterRollup{{Quarter: 1}})

	_, ok := cache.GetRollup(ctx, nil, 2017)
	require.False(t, ok)
	_, ok = cache.GetRollup(ctx, &shopID, 2017)
	require.True(t, ok)
	require.True(t, mr.Exists("costs:rollup:2017:"+shopID.String()))
}

func TestCacheExpires(t *testing.T) {
	cache, mr := testCache(t)
	ctx := context.Background()

	cache.SetRollup(ctx, nil, 2017, []QuarterRollup{{Quarter: 1}})
	mr.FastForward(11 * time.Minute)

	_, ok := cache.GetRollup(ctx, nil, 2017)
	require.False(t, ok)
}

func TestNilCacheIsAMiss(t *testing.T) {
	var cache *Cache
	_, ok := cache.GetRollup(context.Background(), nil, 2017)
	require.False(t, ok)
	cache.SetRollup(context.Background(), nil, 2017, nil)
}

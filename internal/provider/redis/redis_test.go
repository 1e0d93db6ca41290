//go:build integration

package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/provider/providertest"
	"github.com/dwsmith1983/ledgerlens/internal/testutil"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

func setupTestProvider(t *testing.T) *RedisProvider {
	t.Helper()
	addr := os.Getenv("LEDGERLENS_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	prefix := fmt.Sprintf("ledgerlens-test-%d:", time.Now().UnixNano())
	prov := NewFromClient(client, prefix, nil)

	t.Cleanup(func() {
		// Clean up test keys
		var cursor uint64
		for {
			keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				break
			}
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		client.Close()
	})

	return prov
}

func TestConformance(t *testing.T) {
	prov := setupTestProvider(t)
	providertest.RunAll(t, prov)
}

func TestSources_RoundTrip(t *testing.T) {
	prov := setupTestProvider(t)
	ctx := context.Background()

	empty, err := prov.LoadSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Orders)

	raw := testutil.ScenarioRaw()
	require.NoError(t, prov.PutSources(ctx, raw))

	got, err := prov.LoadSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, raw.Orders, got.Orders)
	assert.Equal(t, raw.Translations, got.Translations)

	rows, err := prov.ReadTable(ctx, mart.RawCustomers)
	require.NoError(t, err)
	assert.Len(t, rows, len(raw.Customers))
}

func TestPublish_SupersededVersionExpires(t *testing.T) {
	prov := setupTestProvider(t)
	ctx := context.Background()

	table := func(month string) []mart.Table {
		return []mart.Table{{Name: mart.BuyerSplitMart, Rows: []types.BuyerSplit{{Month: month}}}}
	}
	require.NoError(t, prov.Publish(ctx, "r1", table("2024-01")))
	assert.Equal(t, time.Duration(-1), prov.client.TTL(ctx, prov.tableKey(mart.BuyerSplitMart, "r1")).Val(),
		"current version has no TTL")

	require.NoError(t, prov.Publish(ctx, "r2", table("2024-02")))
	ttl := prov.client.TTL(ctx, prov.tableKey(mart.BuyerSplitMart, "r1")).Val()
	assert.InDelta(t, supersededTTL.Seconds(), ttl.Seconds(), 5)

	current, err := prov.client.Get(ctx, prov.currentKey(mart.BuyerSplitMart)).Result()
	require.NoError(t, err)
	assert.Equal(t, "r2", current)
}

func TestPutRun_TrimsIndex(t *testing.T) {
	prov := setupTestProvider(t)
	prov.runLimit = 2
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, prov.PutRun(ctx, types.RunRecord{
			RunID:     fmt.Sprintf("trim-%d", i),
			Status:    types.RunCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := prov.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "trim-3", runs[0].RunID)

	exists := prov.client.Exists(ctx, prov.runKey("trim-0")).Val()
	assert.Zero(t, exists)
}

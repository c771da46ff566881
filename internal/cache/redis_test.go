package cache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedisAddr = "localhost:6379"

func setupTestCache(t *testing.T, prefix string) *Redis {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testRedisAddr, time.Second)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	conn.Close()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	c := New(client, prefix, time.Minute)
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		client.Close()
	})
	return c
}

func TestRedis_SetGetDelete(t *testing.T) {
	c := setupTestCache(t, "test:seedvault:")
	ctx := context.Background()

	type view struct {
		Code  string  `json:"code"`
		Used  float64 `json:"used"`
		Slots int     `json:"slots"`
	}

	var got view
	found, err := c.Get(ctx, "chamber-map:a", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "chamber-map:a", view{Code: "CH-01", Used: 250, Slots: 12}))

	found, err = c.Get(ctx, "chamber-map:a", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, view{Code: "CH-01", Used: 250, Slots: 12}, got)

	require.NoError(t, c.Delete(ctx, "chamber-map:a", "chamber-occupancy:a"))
	found, err = c.Get(ctx, "chamber-map:a", &got)
	require.NoError(t, err)
	assert.False(t, found)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, uint64(1), stats.Sets)
}

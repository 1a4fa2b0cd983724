package redis

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-picks/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(context.Background(), &config.Config{
		Redis: config.RedisConfig{Enabled: false, Prefix: "test"},
	})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestStore_Disabled(t *testing.T) {
	ctx := context.Background()
	store := NewStore(disabledClient(t))

	require.NoError(t, store.Set(ctx, "breaker:daily", []byte("x"), time.Minute))

	_, found, err := store.Get(ctx, "breaker:daily")
	require.NoError(t, err)
	assert.False(t, found, "disabled store never hits")

	exists, err := store.Exists(ctx, "breaker:daily")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, store.Delete(ctx, "breaker:daily"))
}

func TestWindowStore_DisabledAllowsAll(t *testing.T) {
	ctx := context.Background()
	w := NewWindowStore(disabledClient(t))

	for i := 0; i < 10; i++ {
		allowed, _, _, err := w.Admit(ctx, "daily", 1, time.Minute, time.Now())
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	count, oldest, err := w.Peek(ctx, "daily", time.Minute, time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, oldest.IsZero())
}

func TestWindowStore_MembersUniqueAcrossInstances(t *testing.T) {
	client := disabledClient(t)
	a := NewWindowStore(client)
	b := NewWindowStore(client)
	require.NotEqual(t, a.instance, b.instance)

	// 같은 밀리초, 같은 순번
	ms := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC).UnixMilli()
	ma, mb := a.member(ms), b.member(ms)
	assert.NotEqual(t, ma, mb)
	assert.True(t, strings.HasPrefix(ma, fmt.Sprintf("%d-%s-", ms, a.instance)))
	assert.NotEqual(t, ma, a.member(ms), "sequence advances within an instance")
}

func TestKeyNamespacing(t *testing.T) {
	c := &Client{prefix: "picks"}
	assert.Equal(t, "picks:kv:factor:600519:20261016", c.key("kv", "factor:600519:20261016"))
	assert.Equal(t, "picks:ratelimit:daily", c.key("ratelimit", "daily"))
}

func TestWindowStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	t.Setenv("DATABASE_URL", "postgresql://unused")
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Redis.Prefix = "picks-test"

	client, err := New(context.Background(), cfg)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer client.Close()
	if !client.Enabled() {
		t.Skip("redis disabled")
	}

	ctx := context.Background()
	w := NewWindowStore(client)
	require.NoError(t, w.Clear(ctx, "it"))

	now := time.Now()
	for i := 0; i < 3; i++ {
		allowed, count, _, err := w.Admit(ctx, "it", 3, time.Minute, now.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i+1, count)
	}

	allowed, count, oldest, err := w.Admit(ctx, "it", 3, time.Minute, now.Add(10*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 3, count)
	assert.Equal(t, now.UnixMilli(), oldest.UnixMilli())
}

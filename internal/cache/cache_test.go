package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jobdeck/swipequeue/internal/cache"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)

	return rc
}

// --- Memory backend ---
//
// MemoryCache is the default backend, so its suite runs without containers.

func TestMemory_SetGetRoundtrip(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "test:key", []byte("hello"), 10*time.Second))

	val, found, err := mc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestMemory_GetNotFound(t *testing.T) {
	mc := cache.NewMemoryCache()

	val, found, err := mc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestMemory_TTLExpiry(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "expiry:key", []byte("temp"), 50*time.Millisecond))

	_, found, err := mc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)

	_, found, err = mc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "pin:key", []byte("kept"), 0))

	time.Sleep(20 * time.Millisecond)

	_, found, err := mc.Get(ctx, "pin:key")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMemory_Delete(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "del:key", []byte("bye"), 10*time.Second))
	require.NoError(t, mc.Delete(ctx, "del:key"))

	_, found, err := mc.Get(ctx, "del:key")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mc.Delete(ctx, "does:not:exist"))
}

func TestMemory_IncrWithExpiry(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()
	key := "ratelimit:test:" + uuid.NewString()[:8]

	for want := int64(1); want <= 3; want++ {
		val, err := mc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, val)
	}
}

func TestMemory_IncrWithExpiry_Expires(t *testing.T) {
	mc := cache.NewMemoryCache()
	ctx := context.Background()
	key := "ratelimit:expiry:" + uuid.NewString()[:8]

	_, err := mc.IncrWithExpiry(ctx, key, 50*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	// After expiry the window restarts from 1.
	val, err := mc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Redis backend ---

func TestRedis_Ping(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	assert.NoError(t, rc.Ping(context.Background()))
}

func TestRedis_SetGetRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second))

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestRedis_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestRedis_Expiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "short:key", []byte("temp"), 100*time.Millisecond))

	time.Sleep(200 * time.Millisecond)

	_, found, err := rc.Get(ctx, "short:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedis_IncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:test:" + uuid.NewString()[:8]

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)
}

// --- Cache Key Builders ---

func TestRateLimitKey(t *testing.T) {
	key := cache.RateLimitKey("10.0.0.7")
	assert.Equal(t, "ratelimit:10.0.0.7", key)
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	keys := map[string]bool{
		cache.RateLimitKey("client-1"): true,
		cache.WorkerReadyKey():         true,
	}
	assert.Len(t, keys, 2, "all keys should be unique")
}

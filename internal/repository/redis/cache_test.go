package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *redisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, &redisCache{client: client}
}

func sampleResult() *domain.Result {
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	return &domain.Result{
		Domain:         "example.com",
		Status:         domain.ResultCompleted,
		Reputation:     &domain.ReputationFact{NumberOfDetection: 2, NumberOfScanners: 70, DetectedEngines: "Engine", LastUpdated: "2026.10.18"},
		Registration:   &domain.RegistrationFact{DateCreated: "1995.08.14", OwnerName: "IANA", ExpiredOn: "2027.08.13"},
		LastAnalyzedAt: &at,
	}
}

func TestCache_SetGet(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "example.com", sampleResult(), time.Hour))
	assert.True(t, mr.Exists("domain:example.com"))

	got, found, err := c.Get(ctx, "example.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sampleResult(), got)
}

func TestCache_Miss(t *testing.T) {
	_, c := newTestCache(t)

	got, found, err := c.Get(context.Background(), "missing.example")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestCache_EntryExpires(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "example.com", sampleResult(), time.Hour))
	mr.FastForward(time.Hour + time.Second)

	_, found, err := c.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_DeleteIsIdempotent(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "example.com", sampleResult(), time.Hour))
	require.NoError(t, c.Delete(ctx, "example.com"))
	require.NoError(t, c.Delete(ctx, "example.com"))

	_, found, err := c.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_CorruptEntryIsAnError(t *testing.T) {
	mr, c := newTestCache(t)
	require.NoError(t, mr.Set("domain:example.com", "{not json"))

	_, found, err := c.Get(context.Background(), "example.com")
	require.Error(t, err)
	assert.False(t, found)
}

func TestCache_BackendDown(t *testing.T) {
	mr, c := newTestCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "example.com")
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), "example.com", sampleResult(), time.Hour))
	assert.Error(t, c.Ping(context.Background()))
}

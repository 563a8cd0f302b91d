package cache

import (
	"context"
	"testing"
	"time"

	ri "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Kinship/internal/repository"
)

// 指向无人监听的端口，所有命令立即失败
func deadRedis(t *testing.T) *ri.Client {
	t.Helper()
	c := ri.NewClient(&ri.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCachedDocumentStoreDegradesWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	backing := repository.NewMemoryDocumentStore()
	store := NewCachedDocumentStore(backing, deadRedis(t), time.Minute)
	store.breaker = NewCircuitBreaker("test_docs", 2, time.Hour)

	require.NoError(t, store.WriteDocument(ctx, "communities", "acme:1", map[string]string{"name": "Climbers"}))

	var got map[string]string
	require.NoError(t, store.ReadDocument(ctx, "communities", "acme:1", &got))
	assert.Equal(t, "Climbers", got["name"])

	err := store.ReadDocument(ctx, "communities", "missing", &got)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Equal(t, StateOpen, store.breaker.GetState(), "repeated redis failures open the breaker")

	require.NoError(t, store.DeleteDocument(ctx, "communities", "acme:1"))
	assert.ErrorIs(t, store.ReadDocument(ctx, "communities", "acme:1", &got), repository.ErrNotFound)
}

func TestWizardSnapshotStoreReportsCacheErrors(t *testing.T) {
	s := NewWizardSnapshotStore(deadRedis(t), time.Hour)
	s.breaker = NewCircuitBreaker("test_wizard", 10, time.Hour)

	_, err := s.Load(context.Background(), "sess")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSnapshotNotFound)
}

func TestProtectedCacheJitterBounds(t *testing.T) {
	pc := NewProtectedCache(deadRedis(t), "x", 100*time.Second)
	for i := 0; i < 50; i++ {
		ttl := pc.ttlWithJitter()
		assert.GreaterOrEqual(t, ttl, 100*time.Second)
		assert.Less(t, ttl, 110*time.Second)
	}
}

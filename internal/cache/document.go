package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	ri "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"Kinship/internal/repository"
	"Kinship/pkg/logger"
)

// CachedDocumentStore 在 DocumentStore 前加一层 Redis 读缓存。
// 缓存故障只降级为直读存储，不向调用方返回错误。
type CachedDocumentStore struct {
	next    repository.DocumentStore
	cache   *ProtectedCache
	breaker *CircuitBreaker
}

func NewCachedDocumentStore(next repository.DocumentStore, rdb ri.Cmdable, ttl time.Duration) *CachedDocumentStore {
	return &CachedDocumentStore{
		next:    next,
		cache:   NewProtectedCache(rdb, "doc", ttl),
		breaker: DocumentBreaker,
	}
}

func docCacheKey(collection, key string) string {
	return collection + ":" + key
}

func (s *CachedDocumentStore) ReadDocument(ctx context.Context, collection, key string, out any) error {
	ck := docCacheKey(collection, key)

	var raw json.RawMessage
	var hit, empty bool
	err := s.breaker.Call(ctx, func() error {
		var err error
		hit, empty, err = s.cache.Get(ctx, ck, &raw)
		return err
	})
	switch {
	case err != nil:
		logger.Logger.Debug("Document cache unavailable, reading through",
			zap.String("collection", collection),
			zap.Error(err),
		)
	case hit && empty:
		return repository.ErrNotFound
	case hit:
		return json.Unmarshal(raw, out)
	}

	if err := s.next.ReadDocument(ctx, collection, key, &raw); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.fill(ctx, ck, nil)
		}
		return err
	}
	s.fill(ctx, ck, raw)
	return json.Unmarshal(raw, out)
}

// WriteDocument 先写存储再删缓存
func (s *CachedDocumentStore) WriteDocument(ctx context.Context, collection, key string, doc any) error {
	if err := s.next.WriteDocument(ctx, collection, key, doc); err != nil {
		return err
	}
	s.invalidate(ctx, docCacheKey(collection, key))
	return nil
}

func (s *CachedDocumentStore) DeleteDocument(ctx context.Context, collection, key string) error {
	if err := s.next.DeleteDocument(ctx, collection, key); err != nil {
		return err
	}
	s.invalidate(ctx, docCacheKey(collection, key))
	return nil
}

func (s *CachedDocumentStore) fill(ctx context.Context, ck string, raw json.RawMessage) {
	_ = s.breaker.Call(ctx, func() error {
		if raw == nil {
			return s.cache.SetEmpty(ctx, ck)
		}
		return s.cache.Set(ctx, ck, raw)
	})
}

func (s *CachedDocumentStore) invalidate(ctx context.Context, ck string) {
	err := s.breaker.Call(ctx, func() error {
		return s.cache.Delete(ctx, ck)
	})
	if err != nil {
		logger.Logger.Warn("Failed to invalidate document cache", zap.String("key", ck), zap.Error(err))
	}
}

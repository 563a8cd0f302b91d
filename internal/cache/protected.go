package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	ri "github.com/redis/go-redis/v9"

	"Kinship/storage/redis"
)

const (
	// 空值缓存标识
	emptyValueFlag = "__EMPTY__"
	// 空值缓存TTL，较短时间避免长期占用
	emptyValueTTL = 5 * time.Minute
)

// ProtectedCache 带空值保护与过期抖动的 JSON 缓存
type ProtectedCache struct {
	rdb       ri.Cmdable
	keyPrefix string
	ttl       time.Duration
	emptyTTL  time.Duration
	jitter    time.Duration
}

// NewProtectedCache 过期时间在 ttl 基础上随机增加至多 ttl/10，避免同批 key 同时失效
func NewProtectedCache(rdb ri.Cmdable, keyPrefix string, ttl time.Duration) *ProtectedCache {
	return &ProtectedCache{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		emptyTTL:  emptyValueTTL,
		jitter:    ttl / 10,
	}
}

func (pc *ProtectedCache) key(key string) string {
	return redis.Key(pc.keyPrefix, key)
}

// Set 缓存正常值
func (pc *ProtectedCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return pc.rdb.Set(ctx, pc.key(key), data, pc.ttlWithJitter()).Err()
}

// SetEmpty 缓存“不存在”，防止穿透
func (pc *ProtectedCache) SetEmpty(ctx context.Context, key string) error {
	return pc.rdb.Set(ctx, pc.key(key), emptyValueFlag, pc.emptyTTL).Err()
}

// Get 返回 (命中, 命中的是空值, 错误)
func (pc *ProtectedCache) Get(ctx context.Context, key string, dest any) (hit, empty bool, err error) {
	data, err := pc.rdb.Get(ctx, pc.key(key)).Bytes()
	if errors.Is(err, ri.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to get cache: %w", err)
	}

	if string(data) == emptyValueFlag {
		return true, true, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, false, nil
}

// Delete 删除缓存
func (pc *ProtectedCache) Delete(ctx context.Context, key string) error {
	return pc.rdb.Del(ctx, pc.key(key)).Err()
}

func (pc *ProtectedCache) ttlWithJitter() time.Duration {
	if pc.jitter <= 0 {
		return pc.ttl
	}
	return pc.ttl + time.Duration(rand.Int63n(int64(pc.jitter)))
}

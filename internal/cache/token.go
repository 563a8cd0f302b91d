package cache

import (
	"context"
	"time"

	ri "github.com/redis/go-redis/v9"

	"Kinship/storage/redis"
)

const tokenPrefix = "token"

// RefreshTokenStore 每个用户只保留最新的 refresh token，刷新即轮换
type RefreshTokenStore struct {
	rdb ri.Cmdable
	ttl time.Duration
}

func NewRefreshTokenStore(rdb ri.Cmdable, ttl time.Duration) *RefreshTokenStore {
	return &RefreshTokenStore{rdb: rdb, ttl: ttl}
}

func refreshKey(tenantID, userID string) string {
	return redis.Key(tokenPrefix, "refresh", tenantID, userID)
}

func (s *RefreshTokenStore) Save(ctx context.Context, tenantID, userID, refreshToken string) error {
	return s.rdb.Set(ctx, refreshKey(tenantID, userID), refreshToken, s.ttl).Err()
}

// Matches 存储的 token 与传入一致
func (s *RefreshTokenStore) Matches(ctx context.Context, tenantID, userID, refreshToken string) bool {
	stored, err := s.rdb.Get(ctx, refreshKey(tenantID, userID)).Result()
	if err != nil {
		return false
	}
	return stored == refreshToken
}

func (s *RefreshTokenStore) Delete(ctx context.Context, tenantID, userID string) error {
	return s.rdb.Del(ctx, refreshKey(tenantID, userID)).Err()
}

package cache

import (
	"context"
	"fmt"
	"time"

	ri "github.com/redis/go-redis/v9"

	"Kinship/storage/redis"
)

const (
	messageProcessedPrefix = "msg:processed"
	processingTTL          = 10 * time.Minute
	processedTTL           = 48 * time.Hour
)

// MessageGuard 消息幂等：SETNX 标记处理中，成功后延长 TTL，失败时撤销以允许重试
type MessageGuard struct {
	rdb ri.Cmdable
}

func NewMessageGuard(rdb ri.Cmdable) *MessageGuard {
	return &MessageGuard{rdb: rdb}
}

// TryMarkProcessing 返回 false 表示消息已处理或正在处理
func (g *MessageGuard) TryMarkProcessing(ctx context.Context, messageID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, redis.Key(messageProcessedPrefix, messageID), "processing", processingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return ok, nil
}

func (g *MessageGuard) MarkProcessed(ctx context.Context, messageID string) error {
	return g.rdb.Set(ctx, redis.Key(messageProcessedPrefix, messageID), "done", processedTTL).Err()
}

func (g *MessageGuard) Unmark(ctx context.Context, messageID string) error {
	return g.rdb.Del(ctx, redis.Key(messageProcessedPrefix, messageID)).Err()
}

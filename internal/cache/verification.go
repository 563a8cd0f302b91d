package cache

import (
	"context"
	"time"

	ri "github.com/redis/go-redis/v9"

	"Kinship/storage/redis"
	"Kinship/utils"
)

// 每日发送计数：{prefix}:verification:count:{emailHash}:{date}
// 当天首次计数时设置过期到次日零点（UTC）
const verificationPrefix = "verification"

type SendCounter struct {
	rdb ri.Cmdable
	now func() time.Time
}

func NewSendCounter(rdb ri.Cmdable) *SendCounter {
	return &SendCounter{rdb: rdb, now: time.Now}
}

// IncrSendCount 增加今日发送计数，返回当前次数
func (c *SendCounter) IncrSendCount(ctx context.Context, emailHash string) (int, error) {
	now := c.now()
	key := redis.Key(verificationPrefix, "count", emailHash, utils.DateKey(now))

	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		c.rdb.Expire(ctx, key, utils.UntilNextDay(now))
	}
	return int(count), nil
}

package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	ri "github.com/redis/go-redis/v9"

	"Kinship/storage/redis"
)

// 分布式锁，多实例下同一任务只由一个进程执行
const lockPrefix = "lock"

// 只删除自己持有的锁
var unlockScript = ri.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	rdb ri.Cmdable
}

func NewLocker(rdb ri.Cmdable) *Locker {
	return &Locker{rdb: rdb}
}

// TryLock 获取锁；成功时返回释放函数，锁被占用时返回 nil
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	fullKey := redis.Key(lockPrefix, key)
	owner := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, fullKey, owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, l.rdb, []string{fullKey}, owner).Err()
	}, nil
}

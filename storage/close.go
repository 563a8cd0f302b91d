package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"Kinship/pkg/logger"
	"Kinship/storage/database"
	"Kinship/storage/mq"
	"Kinship/storage/redis"
)

const closeTimeout = 15 * time.Second

// 按依赖逆序关闭：先停止投递，再断开缓存，最后断开数据库
var closers = []struct {
	name  string
	close func(context.Context) error
}{
	{"rabbitmq", mq.Close},
	{"redis", redis.Close},
	{"postgresql", database.Close},
}

// Close 关闭 Init 建立的全部连接，未初始化的组件直接跳过
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	failed := 0
	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			failed++
			logger.Logger.Error("Failed to close storage connection",
				zap.String("component", c.name),
				zap.Error(err),
			)
		}
	}

	logger.Logger.Info("Storage connections closed", zap.Int("failed", failed))
}

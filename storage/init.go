package storage

import (
	"Kinship/storage/database"
	"Kinship/storage/mq"
	"Kinship/storage/redis"
)

// Init 初始化存储层；withMQ 为 false 时跳过 RabbitMQ（同步投递模式）
func Init(withMQ bool) error {
	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		return err
	}

	if withMQ {
		if err := mq.Init(); err != nil {
			return err
		}
	}

	return nil
}

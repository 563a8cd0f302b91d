package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"Kinship/config"
	"Kinship/internal/cache"
	"Kinship/internal/queue"
	"Kinship/internal/service"
	"Kinship/pkg/email"
	"Kinship/pkg/logger"
	"Kinship/pkg/slider"
	"Kinship/pkg/snowflake"
	"Kinship/pkg/token"
	"Kinship/storage"
	"Kinship/storage/redis"
)

func main() {
	config.MustValidate()

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := storage.Init(true); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if err := email.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize email service", zap.Error(err))
	}

	// 服务容器依赖以下客户端，worker 只用到通知服务
	if err := slider.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize slider service", zap.Error(err))
	}
	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	}
	service.Init()
	defer service.Wizard().Close()

	consumer := queue.NewEmailConsumer(service.Notification(), cache.NewMessageGuard(redis.Client()))

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	if err := queue.StartAllConsumers(ctx, consumer.Start); err != nil && ctx.Err() == nil {
		logger.Logger.Error("Consumer exited with error", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}

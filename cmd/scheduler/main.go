package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"Kinship/config"
	"Kinship/internal/cache"
	"Kinship/internal/repository"
	"Kinship/internal/schedule"
	"Kinship/internal/service"
	"Kinship/pkg/email"
	"Kinship/pkg/logger"
	"Kinship/pkg/slider"
	"Kinship/pkg/snowflake"
	"Kinship/pkg/token"
	"Kinship/storage"
	"Kinship/storage/database"
	"Kinship/storage/redis"
)

func main() {
	config.MustValidate()

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	// 提醒邮件按投递模式走队列或直发
	if err := storage.Init(config.Cfg.QueueDelivery()); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	if err := email.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize email service", zap.Error(err))
	}
	if err := slider.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize slider service", zap.Error(err))
	}
	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	}
	service.Init()
	defer service.Wizard().Close()

	// 直接读 PostgreSQL，跳过文档缓存
	reminders := schedule.NewReminderScheduler(
		repository.NewPostgresDocumentStore(database.DB()),
		service.Identity(),
		service.Notification(),
		cache.NewLocker(redis.Client()),
		schedule.ReminderOptions{
			After:      time.Duration(config.Cfg.ReminderAfterHours) * time.Hour,
			AppBaseURL: config.Cfg.AppBaseURL,
		},
	)

	interval := time.Hour
	if config.Cfg.IsDevelopment() {
		interval = time.Minute
		logger.Logger.Info("Reminder scheduler running in development mode with 1m interval")
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.Duration("interval", interval),
	)

	reminders.Run(ctx, interval)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"Kinship/config"
	"Kinship/internal/middleware"
	"Kinship/internal/router"
	"Kinship/internal/service"
	"Kinship/pkg/blob"
	dbotel "Kinship/pkg/database"
	"Kinship/pkg/email"
	"Kinship/pkg/logger"
	"Kinship/pkg/metrics"
	mqotel "Kinship/pkg/mq"
	kotel "Kinship/pkg/otel"
	redisotel "Kinship/pkg/redis"
	"Kinship/pkg/slider"
	"Kinship/pkg/snowflake"
	"Kinship/pkg/token"
	"Kinship/storage"
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

	// 存储层；投递模式为 queue 时同时连接 RabbitMQ
	if err := storage.Init(config.Cfg.QueueDelivery()); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	opts := []hzconfig.Option{
		server.WithHostPorts(net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)),
	}
	routes := router.DefaultOptions()

	if config.Cfg.OTelEnabled {
		shutdown, err := kotel.InitOpenTelemetry(ctx, kotel.Config{
			ServiceName:    config.Cfg.ServiceName,
			ServiceVersion: "1.0.0",
			Environment:    config.Cfg.Environment,
			OTLPEndpoint:   config.Cfg.OTelEndpoint,
			SampleRatio:    config.Cfg.OTelSampleRatio,
		})
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry, continuing without telemetry", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
				}
			}()

			if err := metrics.InitMetrics(); err != nil {
				logger.Logger.Warn("Failed to initialize business metrics", zap.Error(err))
			}
			meter := otel.Meter("kinship")
			if err := middleware.InitMetrics(meter); err != nil {
				logger.Logger.Warn("Failed to initialize HTTP metrics", zap.Error(err))
			}
			if err := dbotel.InitDatabaseMetrics(meter); err != nil {
				logger.Logger.Warn("Failed to initialize database metrics", zap.Error(err))
			}
			if err := redisotel.InitRedisMetrics(meter); err != nil {
				logger.Logger.Warn("Failed to initialize redis metrics", zap.Error(err))
			}
			if err := mqotel.InitMQMetrics(meter); err != nil {
				logger.Logger.Warn("Failed to initialize MQ metrics", zap.Error(err))
			}

			tracer, tracing := middleware.NewServerTracerConfig()
			opts = append(opts, tracer)
			routes.Observe = append([]app.HandlerFunc{tracing}, routes.Observe...)
		}
	}

	if err := email.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize email service", zap.Error(err))
		logger.Logger.Info("Email service will be disabled, verification codes cannot be delivered")
	}

	if err := slider.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize slider service", zap.Error(err))
		logger.Logger.Info("Slider service will be disabled, slider verification may not work")
	}

	if err := blob.Init(ctx); err != nil {
		logger.Logger.Warn("Failed to initialize blob storage", zap.Error(err))
		logger.Logger.Info("Blob storage will be disabled, image uploads will fail")
	}

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	} // token 在中间件前初始化，middleware 依赖 token

	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	service.Init()
	defer service.Wizard().Close()
	service.StartBackground(ctx)

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
		zap.String("email_delivery", config.Cfg.EmailDeliveryMode),
	)

	h := server.Default(opts...)
	router.Register(h.Engine, routes)

	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}

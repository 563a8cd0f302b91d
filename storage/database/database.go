package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"Kinship/config"
	dbotel "Kinship/pkg/database"
	"Kinship/pkg/logger"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

func Init() error {
	dbOnce.Do(func() {
		cfg := config.Cfg
		gormCfg := &gorm.Config{
			Logger:                                   newLogger(),
			DisableForeignKeyConstraintWhenMigrating: true,
			PrepareStmt:                              true,
			SkipDefaultTransaction:                   true,
			// 唯一键冲突翻译为 gorm.ErrDuplicatedKey，注册查重依赖此项
			TranslateError: true,
		}

		var gormDB *gorm.DB
		gormDB, dbErr = gorm.Open(postgres.Open(cfg.GetDSN()), gormCfg)
		if dbErr != nil {
			logger.Logger.Error("Failed to open database", zap.String("host", cfg.PostgreSQLHost), zap.Error(dbErr))
			return
		}

		if len(cfg.PostgreSQLReplicaDSNs) > 0 {
			replicas := make([]gorm.Dialector, 0, len(cfg.PostgreSQLReplicaDSNs))
			for _, dsn := range cfg.PostgreSQLReplicaDSNs {
				replicas = append(replicas, postgres.Open(dsn))
			}
			resolver := dbresolver.Register(dbresolver.Config{
				Replicas: replicas,
				Policy:   dbresolver.RandomPolicy{},
			}).
				SetMaxIdleConns(cfg.PostgreSQLMaxIdle).
				SetMaxOpenConns(cfg.PostgreSQLMaxOpen).
				SetConnMaxIdleTime(10 * time.Minute).
				SetConnMaxLifetime(2 * time.Hour)
			if dbErr = gormDB.Use(resolver); dbErr != nil {
				logger.Logger.Error("Failed to register read replicas", zap.Error(dbErr))
				return
			}
			logger.Logger.Info("Read replicas registered", zap.Int("count", len(replicas)))
		}

		if err := dbotel.WithDefaultOTELPlugin(gormDB, cfg.ServiceName); err != nil {
			logger.Logger.Warn("Failed to register gorm otel plugin", zap.Error(err))
		}

		sqlDB, err := gormDB.DB()
		if err != nil {
			dbErr = err
			logger.Logger.Error("Failed to get sql.DB from gorm", zap.Error(err))
			return
		}

		configureConnectionPool(sqlDB)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			dbErr = err
			logger.Logger.Error("Failed to ping database", zap.Error(err))
			return
		}

		db = gormDB
		if err := Migrate(); err != nil {
			dbErr = fmt.Errorf("run database migration: %w", err)
			return
		}
		logger.Logger.Info("Database initialized successfully")
	})

	return dbErr
}

// DB 返回全局连接，供 repository 层使用
func DB() *gorm.DB {
	return db
}

func Close(ctx context.Context) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- sqlDB.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func configureConnectionPool(sqlDB *sql.DB) {
	cfg := config.Cfg

	sqlDB.SetMaxIdleConns(cfg.PostgreSQLMaxIdle)
	sqlDB.SetMaxOpenConns(cfg.PostgreSQLMaxOpen)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	sqlDB.SetConnMaxLifetime(2 * time.Hour)
}

func newLogger() gormlogger.Interface {
	level := gormlogger.Warn
	switch config.Cfg.LoggerLevel {
	case "DEBUG":
		level = gormlogger.Info
	case "ERROR":
		level = gormlogger.Error
	}

	return gormlogger.New(zapWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Named("gorm").Sugar().Infof(format, args...)
}

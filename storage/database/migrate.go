package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"Kinship/internal/model"
	"Kinship/pkg/logger"
)

// Migrate 创建用户表与文档表
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	err := db.AutoMigrate(
		&model.User{},
		&model.Document{},
	)
	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}

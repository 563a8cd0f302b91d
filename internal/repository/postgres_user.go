package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"Kinship/internal/model"
)

// PostgresUserRepository gorm 实现；依赖 gorm.Config.TranslateError 识别唯一键冲突
type PostgresUserRepository struct {
	db *gorm.DB
}

func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByPublicID(ctx context.Context, publicID int64) (*model.User, error) {
	return r.take(ctx, "public_id = ?", publicID)
}

// GetByEmail 注册查重紧跟在写入之前，走主库
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, tenantID, email string) (*model.User, error) {
	return r.take(ctx, "tenant_id = ? AND email = ?", tenantID, email)
}

func (r *PostgresUserRepository) GetByFederatedSubject(ctx context.Context, tenantID, subject string) (*model.User, error) {
	return r.take(ctx, "tenant_id = ? AND federated_subject = ?", tenantID, subject)
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("update user %d: %w", user.PublicID, err)
	}
	return nil
}

func (r *PostgresUserRepository) take(ctx context.Context, query string, args ...any) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where(query, args...).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

package repository

import (
	"context"
	"errors"

	"Kinship/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered in tenant")
)

// UserRepository 用户账号存储
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByPublicID(ctx context.Context, publicID int64) (*model.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*model.User, error)
	GetByFederatedSubject(ctx context.Context, tenantID, subject string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

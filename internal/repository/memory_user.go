package repository

import (
	"context"
	"sync"
	"time"

	"Kinship/internal/model"
)

// MemoryUserRepository 进程内用户存储，用于测试
type MemoryUserRepository struct {
	mu     sync.RWMutex
	users  map[int64]model.User
	nextID int64
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[int64]model.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TenantID == user.TenantID && u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	r.nextID++
	user.ID = r.nextID
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.PublicID] = *user
	return nil
}

func (r *MemoryUserRepository) GetByPublicID(ctx context.Context, publicID int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[publicID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, tenantID, email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.TenantID == tenantID && u.Email == email })
}

func (r *MemoryUserRepository) GetByFederatedSubject(ctx context.Context, tenantID, subject string) (*model.User, error) {
	return r.find(func(u model.User) bool {
		return u.TenantID == tenantID && u.FederatedSubject != nil && *u.FederatedSubject == subject
	})
}

func (r *MemoryUserRepository) Update(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.PublicID]; !ok {
		return ErrUserNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.PublicID] = *user
	return nil
}

func (r *MemoryUserRepository) find(match func(model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

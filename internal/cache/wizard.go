package cache

import (
	"context"
	"errors"
	"time"

	ri "github.com/redis/go-redis/v9"

	"Kinship/internal/model"
)

// ErrSnapshotNotFound 会话快照不存在或已过期
var ErrSnapshotNotFound = errors.New("wizard snapshot not found")

// WizardSnapshotStore 向导会话快照，TTL 与会话空闲超时一致
type WizardSnapshotStore struct {
	cache   *ProtectedCache
	breaker *CircuitBreaker
}

func NewWizardSnapshotStore(rdb ri.Cmdable, idleTTL time.Duration) *WizardSnapshotStore {
	pc := NewProtectedCache(rdb, "wizard:session", idleTTL)
	pc.jitter = 0
	return &WizardSnapshotStore{cache: pc, breaker: WizardBreaker}
}

func (s *WizardSnapshotStore) Save(ctx context.Context, snap *model.WizardSessionSnapshot) error {
	return s.breaker.Call(ctx, func() error {
		return s.cache.Set(ctx, snap.SessionID, snap)
	})
}

func (s *WizardSnapshotStore) Load(ctx context.Context, sessionID string) (*model.WizardSessionSnapshot, error) {
	var snap model.WizardSessionSnapshot
	var hit, empty bool
	err := s.breaker.Call(ctx, func() error {
		var err error
		hit, empty, err = s.cache.Get(ctx, sessionID, &snap)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !hit || empty {
		return nil, ErrSnapshotNotFound
	}
	return &snap, nil
}

func (s *WizardSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	return s.breaker.Call(ctx, func() error {
		return s.cache.Delete(ctx, sessionID)
	})
}

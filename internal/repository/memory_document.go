package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"Kinship/internal/model"
)

// MemoryDocumentStore 进程内文档存储，用于测试与本地开发
type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[string]model.Document
	now  func() time.Time
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs: make(map[string]model.Document),
		now:  time.Now,
	}
}

func memoryKey(collection, key string) string {
	return collection + "\x00" + key
}

func (s *MemoryDocumentStore) ReadDocument(ctx context.Context, collection, key string, out any) error {
	s.mu.RLock()
	doc, ok := s.docs[memoryKey(collection, key)]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(doc.Body, out)
}

func (s *MemoryDocumentStore) WriteDocument(ctx context.Context, collection, key string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	k := memoryKey(collection, key)
	existing, ok := s.docs[k]
	if !ok {
		existing = model.Document{Collection: collection, Key: key, CreatedAt: now}
	}
	existing.Body = body
	existing.UpdatedAt = now
	s.docs[k] = existing
	return nil
}

func (s *MemoryDocumentStore) DeleteDocument(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	delete(s.docs, memoryKey(collection, key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryDocumentStore) ListStale(ctx context.Context, collection string, before time.Time, limit int) ([]model.Document, error) {
	s.mu.RLock()
	var out []model.Document
	for _, doc := range s.docs {
		if doc.Collection == collection && doc.UpdatedAt.Before(before) {
			out = append(out, doc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetClock 替换时间源
func (s *MemoryDocumentStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

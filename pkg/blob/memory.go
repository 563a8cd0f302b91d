package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryClient 进程内对象存储，开发与测试用
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
	failErr error
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryClient(baseURL string) *MemoryClient {
	return &MemoryClient{
		objects: make(map[string]memoryObject),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// FailWith 之后的 Upload 都返回 err，nil 恢复正常
func (m *MemoryClient) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *MemoryClient) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*Object, error) {
	m.mu.RLock()
	failErr := m.failErr
	m.mu.RUnlock()
	if failErr != nil {
		return nil, failErr
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = memoryObject{data: buf.Bytes(), contentType: contentType}
	m.mu.Unlock()

	return &Object{Key: key, URL: m.baseURL + "/" + key, Size: n, ContentType: contentType}, nil
}

func (m *MemoryClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryClient) KeyFromURL(url string) (string, bool) {
	return keyFromURL(m.baseURL, url)
}

// Get 测试辅助
func (m *MemoryClient) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj.data, obj.contentType, ok
}

func (m *MemoryClient) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

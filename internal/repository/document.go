package repository

import (
	"context"
	"errors"
	"time"

	"Kinship/internal/model"
)

// ErrNotFound 文档不存在
var ErrNotFound = errors.New("document not found")

// DocumentStore 按 (collection, key) 读写 JSON 文档
type DocumentStore interface {
	// ReadDocument 读取并反序列化到 out，不存在时返回 ErrNotFound
	ReadDocument(ctx context.Context, collection, key string, out any) error
	// WriteDocument 整体覆盖写入
	WriteDocument(ctx context.Context, collection, key string, doc any) error
	// DeleteDocument 删除，不存在时不报错
	DeleteDocument(ctx context.Context, collection, key string) error
}

// StaleLister 列出某集合中长时间未更新的文档
type StaleLister interface {
	ListStale(ctx context.Context, collection string, before time.Time, limit int) ([]model.Document, error)
}

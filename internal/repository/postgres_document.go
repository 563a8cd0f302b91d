package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"Kinship/internal/model"
)

// PostgresDocumentStore 以 documents 表（jsonb）实现 DocumentStore
type PostgresDocumentStore struct {
	db *gorm.DB
}

func NewPostgresDocumentStore(db *gorm.DB) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

// ReadDocument 固定走主库，读改写流程不能读到副本的旧数据
func (s *PostgresDocumentStore) ReadDocument(ctx context.Context, collection, key string, out any) error {
	var doc model.Document
	err := s.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where("collection = ? AND doc_key = ?", collection, key).
		Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read document %s/%s: %w", collection, key, err)
	}
	return json.Unmarshal(doc.Body, out)
}

func (s *PostgresDocumentStore) WriteDocument(ctx context.Context, collection, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, key, err)
	}

	doc := model.Document{
		Collection: collection,
		Key:        key,
		Body:       body,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
		}).
		Create(&doc).Error
	if err != nil {
		return fmt.Errorf("write document %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *PostgresDocumentStore) DeleteDocument(ctx context.Context, collection, key string) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_key = ?", collection, key).
		Delete(&model.Document{}).Error
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, key, err)
	}
	return nil
}

// ListStale 扫描类查询，配置了副本时走只读副本
func (s *PostgresDocumentStore) ListStale(ctx context.Context, collection string, before time.Time, limit int) ([]model.Document, error) {
	var docs []model.Document
	query := s.db.WithContext(ctx).
		Clauses(dbresolver.Read).
		Where("collection = ? AND updated_at < ?", collection, before).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list stale %s: %w", collection, err)
	}
	return docs, nil
}

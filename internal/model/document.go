package model

import (
	"encoding/json"
	"time"
)

// Document 通用 JSON 文档，(collection, key) 唯一。
// 不带软删除，删除即物理删除，upsert 才不会撞上已删除的行。
type Document struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Collection string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_documents_collection_key,priority:1;index:idx_documents_collection_updated,priority:1" json:"collection"`
	Key        string          `gorm:"column:doc_key;type:varchar(191);not null;uniqueIndex:idx_documents_collection_key,priority:2" json:"key"`
	Body       json.RawMessage `gorm:"type:jsonb;not null" json:"body"`
	CreatedAt  time.Time       `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"not null;default:now();index:idx_documents_collection_updated,priority:2" json:"updated_at"`
}

// TableName 指定表名
func (Document) TableName() string {
	return "documents"
}

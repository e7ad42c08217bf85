package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// ChunkRow 检索内容表的行模型
// 每个逻辑表（corpus）一张物理表，结构相同，表名运行时指定。
// Embedding 允许为NULL：尚未向量化的行合法，但不参与相似度检索。
type ChunkRow struct {
	ID            int64            `gorm:"column:id;primaryKey;autoIncrement"`
	Content       string           `gorm:"column:content;type:text;not null"`
	SourceID      string           `gorm:"column:source_id;type:varchar(500)"`
	Position      int              `gorm:"column:position"`
	SequenceIndex int              `gorm:"column:sequence_index"`
	Embedding     *pgvector.Vector `gorm:"column:embedding;type:vector"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
}

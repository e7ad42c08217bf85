package rag

import (
	"context"
	"regexp"

	apperrors "github.com/thithi/rag-backend/internal/errors"
)

// VectorStore 向量存储抽象，按逻辑表组织chunk
// 实现方负责相似度计算与排序；相同查询在相同数据上必须返回确定性结果。
type VectorStore interface {
	// UpsertBatch 整批写入chunk，写入失败整批回滚
	// 缺向量的行跳过并计入skipped，不拖垮整批。
	UpsertBatch(ctx context.Context, table string, rows []ChunkInsert) (inserted int, skipped int, err error)
	// Nearest 返回与query向量相似度>=threshold的前topK个候选
	// 排序: similarity DESC, source_id ASC, sequence_index ASC
	Nearest(ctx context.Context, table string, query []float32, topK int, threshold float64) ([]Candidate, error)
	// TableExists 逻辑表是否存在
	TableExists(ctx context.Context, table string) (bool, error)
	// RowCount 已有向量的行数
	RowCount(ctx context.Context, table string) (int64, error)
}

// ChunkInsert 待写入的一行
type ChunkInsert struct {
	Content       string
	SourceID      string
	Position      int
	SequenceIndex int
	Embedding     []float32
}

// 逻辑表名只允许字母数字下划线，防止拼接SQL时被注入
var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateTableName 校验逻辑表名
func ValidateTableName(table string) error {
	if table == "" {
		return apperrors.NewInvalidInputError("table", "must not be empty")
	}
	if len(table) > 63 || !tableNamePattern.MatchString(table) {
		return apperrors.NewInvalidInputError("table", "must match ^[a-zA-Z_][a-zA-Z0-9_]*$")
	}
	return nil
}

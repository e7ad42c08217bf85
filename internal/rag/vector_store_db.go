package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/thithi/rag-backend/internal/errors"
	"github.com/thithi/rag-backend/internal/logger"
	"github.com/thithi/rag-backend/internal/models"
)

// DBVectorStore 关系库向量存储实现，基于pgvector的cosine距离
type DBVectorStore struct {
	db         *gorm.DB
	dimensions int
}

// NewDBVectorStore 创建数据库向量存储
func NewDBVectorStore(db *gorm.DB, dimensions int) *DBVectorStore {
	return &DBVectorStore{db: db, dimensions: dimensions}
}

// nearestRow Raw查询的扫描目标
type nearestRow struct {
	ID            int64   `gorm:"column:id"`
	Content       string  `gorm:"column:content"`
	SourceID      string  `gorm:"column:source_id"`
	Position      int     `gorm:"column:position"`
	SequenceIndex int     `gorm:"column:sequence_index"`
	Similarity    float64 `gorm:"column:similarity"`
}

// Nearest cosine相似度检索
// 相似度 = 1 - (embedding <=> query)，阈值含等于；
// 排序规则固定，保证同数据同查询结果可复现。
func (s *DBVectorStore) Nearest(ctx context.Context, table string, query []float32, topK int, threshold float64) ([]Candidate, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	if len(query) != s.dimensions {
		return nil, apperrors.NewDimensionMismatchError(table, s.dimensions, len(query))
	}
	if topK <= 0 {
		return nil, apperrors.NewInvalidInputError("top_k", "must be positive")
	}

	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NewTableNotFoundError(table)
	}

	vec := pgvector.NewVector(query)
	sql := fmt.Sprintf(`
		SELECT id, content, source_id, position, sequence_index,
		       1 - (embedding <=> ?) AS similarity
		FROM %q
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> ?) >= ?
		ORDER BY similarity DESC, source_id ASC, sequence_index ASC
		LIMIT ?`, table)

	start := time.Now()
	var rows []nearestRow
	if err := s.db.WithContext(ctx).Raw(sql, vec, vec, threshold, topK).Scan(&rows).Error; err != nil {
		logger.Error("向量检索失败", zap.String("table", table), zap.Error(err))
		return nil, apperrors.NewDatabaseError("vector search failed", err).WithTable(table)
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		candidates = append(candidates, Candidate{
			ID:            MakeCandidateID(table, r.ID),
			Table:         table,
			RowID:         r.ID,
			Content:       r.Content,
			SourceID:      r.SourceID,
			Position:      r.Position,
			SequenceIndex: r.SequenceIndex,
			Similarity:    r.Similarity,
		})
	}

	logger.Debug("向量检索完成",
		zap.String("table", table),
		zap.Int("hits", len(candidates)),
		zap.Duration("duration", time.Since(start)))
	return candidates, nil
}

// UpsertBatch 单事务整批写入，写入失败整批回滚
// 缺向量的行跳过不入库；维度错误只针对非空向量。
func (s *DBVectorStore) UpsertBatch(ctx context.Context, table string, rows []ChunkInsert) (int, int, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}

	skipped := 0
	records := make([]models.ChunkRow, 0, len(rows))
	for i, r := range rows {
		if len(r.Embedding) == 0 {
			skipped++
			continue
		}
		if len(r.Embedding) != s.dimensions {
			return 0, 0, apperrors.NewDimensionMismatchError(table, s.dimensions, len(r.Embedding)).
				WithDetails(map[string]interface{}{"index": i})
		}
		vec := pgvector.NewVector(r.Embedding)
		records = append(records, models.ChunkRow{
			Content:       r.Content,
			SourceID:      r.SourceID,
			Position:      r.Position,
			SequenceIndex: r.SequenceIndex,
			Embedding:     &vec,
		})
	}
	if skipped > 0 {
		logger.Warn("跳过缺向量的行", zap.String("table", table), zap.Int("skipped", skipped))
	}
	if len(records) == 0 {
		return 0, skipped, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(table).Create(&records).Error
	})
	if err != nil {
		logger.Error("批量写入失败", zap.String("table", table), zap.Int("rows", len(rows)), zap.Error(err))
		return 0, skipped, apperrors.NewDatabaseError("batch insert failed", err).WithTable(table)
	}
	return len(records), skipped, nil
}

// TableExists 通过gorm migrator探测物理表
func (s *DBVectorStore) TableExists(ctx context.Context, table string) (bool, error) {
	if err := ValidateTableName(table); err != nil {
		return false, err
	}
	return s.db.WithContext(ctx).Migrator().HasTable(table), nil
}

// RowCount 统计已有向量的行数
func (s *DBVectorStore) RowCount(ctx context.Context, table string) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.WithContext(ctx).Table(table).Where("embedding IS NOT NULL").Count(&count).Error
	if err != nil {
		return 0, apperrors.NewDatabaseError("row count failed", err).WithTable(table)
	}
	return count, nil
}

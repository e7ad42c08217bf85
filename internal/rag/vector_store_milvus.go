package rag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	apperrors "github.com/thithi/rag-backend/internal/errors"
	"github.com/thithi/rag-backend/internal/logger"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address          string
	Username         string
	Password         string
	CollectionPrefix string
	Database         string
	UseTLS           bool
	Timeout          time.Duration
}

// MilvusVectorStore 以collection-per-table方式实现VectorStore的备选后端
type MilvusVectorStore struct {
	milvusClient     client.Client
	collectionPrefix string
	dimensions       int
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions, dimensions int) (*MilvusVectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.CollectionPrefix == "" {
		opts.CollectionPrefix = "rag"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to create milvus client", err)
	}

	return &MilvusVectorStore{
		milvusClient:     milvusClient,
		collectionPrefix: opts.CollectionPrefix,
		dimensions:       dimensions,
	}, nil
}

func (s *MilvusVectorStore) collectionName(table string) string {
	return fmt.Sprintf("%s_%s", s.collectionPrefix, table)
}

func (s *MilvusVectorStore) ensureCollection(ctx context.Context, table string) error {
	name := s.collectionName(table)

	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return apperrors.NewDatabaseError("failed to check collection", err).WithTable(table)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    fmt.Sprintf("chunks for logical table %s", table),
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "source_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "500",
				},
			},
			{
				Name:     "position",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "sequence_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.dimensions),
				},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return apperrors.NewDatabaseError("failed to create collection", err).WithTable(table)
	}

	var index entity.Index
	index, indexErr := entity.NewIndexHNSW(entity.COSINE, 8, 64)
	if indexErr != nil {
		index, indexErr = entity.NewIndexIvfFlat(entity.COSINE, 128)
		if indexErr != nil {
			return apperrors.NewDatabaseError("failed to create index", indexErr).WithTable(table)
		}
	}
	if err := s.milvusClient.CreateIndex(ctx, name, "vector", index, false); err != nil {
		// 索引创建失败不影响使用，只记录警告
		logger.Warn("创建向量索引失败", zap.String("collection", name), zap.Error(err))
	}
	return nil
}

// UpsertBatch 整批写入collection，缺向量的行跳过
func (s *MilvusVectorStore) UpsertBatch(ctx context.Context, table string, rows []ChunkInsert) (int, int, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	if err := s.ensureCollection(ctx, table); err != nil {
		return 0, 0, err
	}

	skipped := 0
	contents := make([]string, 0, len(rows))
	sourceIDs := make([]string, 0, len(rows))
	positions := make([]int64, 0, len(rows))
	seqIndexes := make([]int64, 0, len(rows))
	vectors := make([][]float32, 0, len(rows))
	for i, r := range rows {
		if len(r.Embedding) == 0 {
			skipped++
			continue
		}
		if len(r.Embedding) != s.dimensions {
			return 0, 0, apperrors.NewDimensionMismatchError(table, s.dimensions, len(r.Embedding)).
				WithDetails(map[string]interface{}{"index": i})
		}
		contents = append(contents, r.Content)
		sourceIDs = append(sourceIDs, r.SourceID)
		positions = append(positions, int64(r.Position))
		seqIndexes = append(seqIndexes, int64(r.SequenceIndex))
		vectors = append(vectors, r.Embedding)
	}
	if len(vectors) == 0 {
		return 0, skipped, nil
	}

	name := s.collectionName(table)
	_, err := s.milvusClient.Insert(ctx, name, "",
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("source_id", sourceIDs),
		entity.NewColumnInt64("position", positions),
		entity.NewColumnInt64("sequence_index", seqIndexes),
		entity.NewColumnFloatVector("vector", s.dimensions, vectors),
	)
	if err != nil {
		return 0, skipped, apperrors.NewDatabaseError("milvus insert failed", err).WithTable(table)
	}

	if err := s.milvusClient.Flush(ctx, name, false); err != nil {
		logger.Warn("flush collection失败", zap.String("collection", name), zap.Error(err))
	}
	return len(vectors), skipped, nil
}

// Nearest COSINE检索后在内存里套用统一的阈值与排序规则
func (s *MilvusVectorStore) Nearest(ctx context.Context, table string, query []float32, topK int, threshold float64) ([]Candidate, error) {
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

	name := s.collectionName(table)
	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := s.milvusClient.Search(
		ctx,
		name,
		[]string{},
		"",
		[]string{"content", "source_id", "position", "sequence_index"},
		[]entity.Vector{entity.FloatVector(query)},
		"vector",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, apperrors.NewDatabaseError("milvus search failed", err).WithTable(table)
	}
	if len(searchResults) == 0 {
		return nil, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, apperrors.NewDatabaseError("milvus search error", result.Err).WithTable(table)
	}

	var ids []int64
	if idCol, ok := result.IDs.(*entity.ColumnInt64); ok {
		ids = idCol.Data()
	}
	var contents, sourceIDs []string
	var positions, seqIndexes []int64
	for _, field := range result.Fields {
		switch field.Name() {
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		case "source_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				sourceIDs = col.Data()
			}
		case "position":
			if col, ok := field.(*entity.ColumnInt64); ok {
				positions = col.Data()
			}
		case "sequence_index":
			if col, ok := field.(*entity.ColumnInt64); ok {
				seqIndexes = col.Data()
			}
		}
	}

	candidates := make([]Candidate, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		score := float64(0)
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		if score < threshold {
			continue
		}
		c := Candidate{Table: table, Similarity: score}
		if i < len(ids) {
			c.RowID = ids[i]
			c.ID = MakeCandidateID(table, ids[i])
		}
		if i < len(contents) {
			c.Content = contents[i]
		}
		if i < len(sourceIDs) {
			c.SourceID = sourceIDs[i]
		}
		if i < len(positions) {
			c.Position = int(positions[i])
		}
		if i < len(seqIndexes) {
			c.SequenceIndex = int(seqIndexes[i])
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return lessCandidate(candidates[i], candidates[j])
	})
	return candidates, nil
}

// TableExists 探测collection是否存在
func (s *MilvusVectorStore) TableExists(ctx context.Context, table string) (bool, error) {
	if err := ValidateTableName(table); err != nil {
		return false, err
	}
	has, err := s.milvusClient.HasCollection(ctx, s.collectionName(table))
	if err != nil {
		return false, apperrors.NewDatabaseError("failed to check collection", err).WithTable(table)
	}
	return has, nil
}

// RowCount 统计collection行数
func (s *MilvusVectorStore) RowCount(ctx context.Context, table string) (int64, error) {
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	name := s.collectionName(table)
	stats, err := s.milvusClient.GetCollectionStatistics(ctx, name)
	if err != nil {
		return 0, apperrors.NewDatabaseError("failed to get collection statistics", err).WithTable(table)
	}
	var count int64
	fmt.Sscanf(stats["row_count"], "%d", &count)
	return count, nil
}

// Close 断开Milvus连接
func (s *MilvusVectorStore) Close() error {
	if s.milvusClient == nil {
		return nil
	}
	return s.milvusClient.Close()
}

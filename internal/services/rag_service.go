package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thithi/rag-backend/internal/config"
	apperrors "github.com/thithi/rag-backend/internal/errors"
	"github.com/thithi/rag-backend/internal/logger"
	"github.com/thithi/rag-backend/internal/metrics"
	"github.com/thithi/rag-backend/internal/rag"
)

// RAGService 检索问答服务，对外封装检索、摄取与就绪探测
type RAGService struct {
	retriever *rag.Retriever
	ingester  *rag.Ingester
	embedder  rag.Embedder
	store     rag.VectorStore
	collector *metrics.Collector

	defaultTable     string
	defaultTopK      int
	defaultThreshold float64
}

// SearchRequest 检索请求参数，零值字段走配置默认
type SearchRequest struct {
	Query               string
	Tables              []string
	TopN                int
	SimilarityThreshold *float64
	WantSuggestions     bool
	SelectedIDs         []string
}

// IngestRequest 摄取请求参数
type IngestRequest struct {
	Table     string
	Documents []rag.SourceDocument
}

// NewRAGService 创建检索问答服务
func NewRAGService(retriever *rag.Retriever, ingester *rag.Ingester, embedder rag.Embedder, store rag.VectorStore, collector *metrics.Collector, cfg config.RAGConfig) *RAGService {
	return &RAGService{
		retriever:        retriever,
		ingester:         ingester,
		embedder:         embedder,
		store:            store,
		collector:        collector,
		defaultTable:     cfg.DefaultTable,
		defaultTopK:      cfg.DefaultTopK,
		defaultThreshold: cfg.DefaultThreshold,
	}
}

// Search 处理一次检索，缺省参数取配置默认值
func (s *RAGService) Search(ctx context.Context, req SearchRequest) (*rag.SearchOutcome, error) {
	tables := req.Tables
	if len(tables) == 0 {
		tables = []string{s.defaultTable}
	}
	topK := req.TopN
	if topK <= 0 {
		topK = s.defaultTopK
	}
	threshold := s.defaultThreshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}

	selectedIDs := make([]rag.CandidateID, 0, len(req.SelectedIDs))
	for _, id := range req.SelectedIDs {
		selectedIDs = append(selectedIDs, rag.CandidateID(id))
	}

	requestID := uuid.NewString()
	start := time.Now()
	outcome, err := s.retriever.Search(ctx, rag.RetrievalRequest{
		RequestID:           requestID,
		Query:               req.Query,
		Tables:              tables,
		TopK:                topK,
		SimilarityThreshold: threshold,
		SelectedIDs:         selectedIDs,
		WantSuggestions:     req.WantSuggestions,
	})
	if err != nil {
		if s.collector != nil {
			s.collector.RecordSearch("answer", time.Since(start), 0, 0, err)
		}
		logger.Error("检索失败",
			zap.String("request_id", requestID),
			zap.Strings("tables", tables),
			zap.Error(err))
		return nil, apperrors.GetAppError(err).WithRequestID(requestID)
	}

	gathered := 0
	outcomeKind := string(outcome.Kind)
	if outcome.Suggestions != nil {
		gathered = outcome.Suggestions.TotalAvailable
	} else if outcome.Answer != nil {
		gathered = len(outcome.Answer.Sources)
	}
	if s.collector != nil {
		s.collector.RecordSearch(outcomeKind, time.Since(start), gathered, len(outcome.SkippedTables), nil)
	}

	logger.Info("检索完成",
		zap.String("request_id", requestID),
		zap.String("outcome", outcomeKind),
		zap.Int("candidates", gathered),
		zap.Duration("duration", time.Since(start)))
	return outcome, nil
}

// Ingest 把一组内容单元摄取到逻辑表，表名缺省取配置默认
func (s *RAGService) Ingest(ctx context.Context, req IngestRequest) (*rag.IngestReport, error) {
	table := req.Table
	if table == "" {
		table = s.defaultTable
	}

	start := time.Now()
	report, err := s.ingester.Ingest(ctx, table, req.Documents)
	if err != nil {
		return nil, err
	}
	if s.collector != nil {
		s.collector.RecordIngest(time.Since(start), report.Inserted, report.Skipped)
	}
	return report, nil
}

// TableStats 返回逻辑表的向量行数
func (s *RAGService) TableStats(ctx context.Context, table string) (int64, error) {
	if table == "" {
		table = s.defaultTable
	}
	exists, err := s.store.TableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, apperrors.NewTableNotFoundError(table)
	}
	return s.store.RowCount(ctx, table)
}

// Ready 探测下游依赖可用性
func (s *RAGService) Ready(ctx context.Context) error {
	if err := s.embedder.Ready(ctx); err != nil {
		return err
	}
	_, err := s.store.TableExists(ctx, s.defaultTable)
	return err
}

package rag

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/thithi/rag-backend/internal/errors"
	"github.com/thithi/rag-backend/internal/logger"
)

// RetrieverOptions 检索行为参数
type RetrieverOptions struct {
	DefaultTopK        int
	DefaultThreshold   float64
	MinSuggestions     int
	SuggestionPageSize int
	PreviewLength      int
	MaxParallel        int
}

// Retriever 检索协调器：向量化查询、并发扇出各逻辑表、全局合并排序，
// 再决定走建议集还是直接合成答案
type Retriever struct {
	store       VectorStore
	embedder    Embedder
	synthesizer *Synthesizer
	opts        RetrieverOptions
}

// NewRetriever 创建检索协调器
func NewRetriever(store VectorStore, embedder Embedder, synthesizer *Synthesizer, opts RetrieverOptions) *Retriever {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 4
	}
	if opts.MinSuggestions <= 0 {
		opts.MinSuggestions = 3
	}
	if opts.SuggestionPageSize <= 0 {
		opts.SuggestionPageSize = 10
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = 200
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	return &Retriever{store: store, embedder: embedder, synthesizer: synthesizer, opts: opts}
}

// Search 处理一次检索请求
// 查询只向量化一次；每张表独立失败不拖垮整体，除非全部失败。
// 带selected_ids的请求跳过建议判定，直接对选中候选合成答案。
func (r *Retriever) Search(ctx context.Context, req RetrievalRequest) (*SearchOutcome, error) {
	if req.Query == "" {
		return nil, apperrors.NewInvalidInputError("query", "must not be empty")
	}
	if len(req.Tables) == 0 {
		return nil, apperrors.NewInvalidInputError("tables", "must not be empty")
	}
	for _, table := range req.Tables {
		if err := ValidateTableName(table); err != nil {
			return nil, err
		}
	}
	topK := req.TopK
	if topK <= 0 {
		topK = r.opts.DefaultTopK
	}
	threshold := req.SimilarityThreshold
	if threshold < 0 || threshold > 1 {
		return nil, apperrors.NewInvalidInputError("similarity_threshold", "must be within [0, 1]")
	}

	queryVector, err := EmbedQuery(ctx, r.embedder, req.Query)
	if err != nil {
		return nil, err
	}

	gathered, skipped, err := r.fanOut(ctx, req.Tables, queryVector, topK, threshold)
	if err != nil {
		return nil, err
	}
	rankCandidates(gathered)

	if len(req.SelectedIDs) > 0 {
		selected := resolveSelection(gathered, req.SelectedIDs)
		answer, err := r.synthesizer.Synthesize(ctx, req.Query, selected)
		if err != nil {
			return nil, err
		}
		answer.SkippedTables = skipped
		return &SearchOutcome{Kind: OutcomeAnswer, Answer: answer, SkippedTables: skipped}, nil
	}

	top := gathered
	if len(top) > topK {
		top = top[:topK]
	}

	if req.WantSuggestions && len(gathered) >= r.opts.MinSuggestions {
		return &SearchOutcome{
			Kind:          OutcomeSuggestions,
			Suggestions:   r.buildSuggestions(gathered),
			SkippedTables: skipped,
		}, nil
	}

	answer, err := r.synthesizer.Synthesize(ctx, req.Query, top)
	if err != nil {
		return nil, err
	}
	answer.SkippedTables = skipped
	return &SearchOutcome{Kind: OutcomeAnswer, Answer: answer, SkippedTables: skipped}, nil
}

// fanOut 并发检索各逻辑表，失败的表记入skipped
// 全部失败时返回扇出错误。
func (r *Retriever) fanOut(ctx context.Context, tables []string, queryVector []float32, topK int, threshold float64) ([]Candidate, []string, error) {
	type tableResult struct {
		table      string
		candidates []Candidate
		err        error
	}

	results := make([]tableResult, len(tables))
	sem := make(chan struct{}, r.opts.MaxParallel)
	var wg sync.WaitGroup
	for i, table := range tables {
		wg.Add(1)
		go func(i int, table string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			candidates, err := r.store.Nearest(ctx, table, queryVector, topK, threshold)
			results[i] = tableResult{table: table, candidates: candidates, err: err}
		}(i, table)
	}
	wg.Wait()

	var gathered []Candidate
	var skipped []string
	for _, res := range results {
		if res.err != nil {
			logger.Warn("逻辑表检索失败，跳过",
				zap.String("table", res.table),
				zap.Error(res.err))
			skipped = append(skipped, res.table)
			continue
		}
		gathered = append(gathered, res.candidates...)
	}
	if len(skipped) == len(tables) {
		return nil, nil, apperrors.NewPartialFanoutError(skipped)
	}
	sort.Strings(skipped)
	return gathered, skipped, nil
}

// resolveSelection 回选候选并保持排序后的顺序，选中ID的先后不影响结果；
// 未知ID与重复ID丢弃
func resolveSelection(ranked []Candidate, selectedIDs []CandidateID) []Candidate {
	wanted := make(map[CandidateID]struct{}, len(selectedIDs))
	for _, id := range selectedIDs {
		wanted[id] = struct{}{}
	}
	var selected []Candidate
	for _, c := range ranked {
		if _, ok := wanted[c.ID]; !ok {
			continue
		}
		delete(wanted, c.ID)
		selected = append(selected, c)
	}
	return selected
}

func (r *Retriever) buildSuggestions(gathered []Candidate) *SuggestionSet {
	limit := r.opts.SuggestionPageSize
	if limit > len(gathered) {
		limit = len(gathered)
	}
	items := make([]SuggestionItem, 0, limit)
	for _, c := range gathered[:limit] {
		items = append(items, SuggestionItem{
			ID:         c.ID,
			Table:      c.Table,
			SourceID:   c.SourceID,
			Position:   c.Position,
			Similarity: c.Similarity,
			Preview:    truncatePreview(c.Content, r.opts.PreviewLength),
		})
	}
	return &SuggestionSet{TotalAvailable: len(gathered), Items: items}
}

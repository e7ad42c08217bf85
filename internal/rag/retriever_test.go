package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/thithi/rag-backend/internal/errors"
)

// MockVectorStore 向量存储mock
type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) UpsertBatch(ctx context.Context, table string, rows []ChunkInsert) (int, int, error) {
	args := m.Called(ctx, table, rows)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockVectorStore) Nearest(ctx context.Context, table string, query []float32, topK int, threshold float64) ([]Candidate, error) {
	args := m.Called(ctx, table, query, topK, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Candidate), args.Error(1)
}

func (m *MockVectorStore) TableExists(ctx context.Context, table string) (bool, error) {
	args := m.Called(ctx, table)
	return args.Bool(0), args.Error(1)
}

func (m *MockVectorStore) RowCount(ctx context.Context, table string) (int64, error) {
	args := m.Called(ctx, table)
	return args.Get(0).(int64), args.Error(1)
}

// MockEmbedder 向量化mock
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) Dimensions() int {
	return m.Called().Int(0)
}

func (m *MockEmbedder) Ready(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newTestRetriever(store VectorStore, embedder Embedder, gen Generator) *Retriever {
	return NewRetriever(store, embedder, NewSynthesizer(gen, 200), RetrieverOptions{
		DefaultTopK:        4,
		DefaultThreshold:   0.3,
		MinSuggestions:     3,
		SuggestionPageSize: 10,
		PreviewLength:      200,
		MaxParallel:        4,
	})
}

func stubQueryEmbedding(embedder *MockEmbedder) []float32 {
	vec := []float32{0.1, 0.2, 0.3}
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{vec}, nil).Once()
	return vec
}

func TestRetriever_EmptyQueryRejected(t *testing.T) {
	r := newTestRetriever(new(MockVectorStore), new(MockEmbedder), new(MockGenerator))
	_, err := r.Search(context.Background(), RetrievalRequest{Tables: []string{"docs"}})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetAppError(err).Code)
}

func TestRetriever_QueryEmbeddedExactlyOnce(t *testing.T) {
	store := new(MockVectorStore)
	embedder := new(MockEmbedder)
	gen := new(MockGenerator)
	vec := stubQueryEmbedding(embedder)
	store.On("Nearest", mock.Anything, "a", vec, 4, 0.3).Return([]Candidate{}, nil)
	store.On("Nearest", mock.Anything, "b", vec, 4, 0.3).Return([]Candidate{}, nil)

	r := newTestRetriever(store, embedder, gen)
	_, err := r.Search(context.Background(), RetrievalRequest{
		Query: "q", Tables: []string{"a", "b"}, TopK: 4, SimilarityThreshold: 0.3,
	})
	require.NoError(t, err)
	embedder.AssertNumberOfCalls(t, "EmbedBatch", 1)
}

func TestRetriever_MultiTableMergeRespectsGlobalOrder(t *testing.T) {
	store := new(MockVectorStore)
	embedder := new(MockEmbedder)
	gen := new(MockGenerator)
	vec := stubQueryEmbedding(embedder)

	store.On("Nearest", mock.Anything, "a", vec, 2, 0.3).Return([]Candidate{
		{ID: "a:1", Table: "a", RowID: 1, SourceID: "x.pdf", Similarity: 0.9, Content: "c1"},
		{ID: "a:2", Table: "a", RowID: 2, SourceID: "x.pdf", Similarity: 0.6, Content: "c2"},
	}, nil)
	store.On("Nearest", mock.Anything, "b", vec, 2, 0.3).Return([]Candidate{
		{ID: "b:9", Table: "b", RowID: 9, SourceID: "y.pdf", Similarity: 0.8, Content: "c3"},
	}, nil)

	gen.On("Generate", mock.Anything, mock.Anything).Return("answer", nil)
	r := newTestRetriever(store, embedder, gen)
	outcome, err := r.Search(context.Background(), RetrievalRequest{
		Query: "q", Tables: []string{"a", "b"}, TopK: 2, SimilarityThreshold: 0.3,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeAnswer, outcome.Kind)

	// 全局topK=2应取a:1(0.9)与b:9(0.8)，a:2(0.6)被挤出
	require.Len(t, outcome.Answer.Sources, 2)
	assert.Equal(t, "x.pdf", outcome.Answer.Sources[0].SourceID)
	assert.InDelta(t, 0.9, outcome.Answer.Sources[0].Similarity, 1e-9)
	assert.Equal(t, "y.pdf", outcome.Answer.Sources[1].SourceID)
}

// capturingGenerator 直接回显的生成stub
type capturingGenerator struct {
	prompts []string
}

func (g *capturingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return "answer", nil
}

func TestRetriever_SuggestionsWhenEnoughCandidates(t *testing.T) {
	store := new(MockVectorStore)
	embedder := new(MockEmbedder)
	vec := stubQueryEmbedding(embedder)

	store.On("Nearest", mock.Anything, "docs", vec, 4, 0.3).Return([]Candidate{
		{ID: "docs:1", Table: "docs", SourceID: "a.pdf", Similarity: 0.9, Content: "c1"},
		{ID: "docs:2", Table: "docs", SourceID: "a.pdf", Similarity: 0.8, Content: "c2"},
		{ID: "docs:3", Table: "docs", SourceID: "b.pdf", Similarity: 0.7, Content: "c3"},
	}, nil)

	gen := new(MockGenerator)
	r := newTestRetriever(store, embedder, gen)
	outcome, err := r.Search(context.Background(), RetrievalRequest{
		Query: "q", Tables: []string{"docs"}, TopK: 4, SimilarityThreshold: 0.3, WantSuggestions: true,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeSuggestions, outcome.Kind)
	require.NotNil(t, outcome.Suggestions)
	assert.Equal(t, 3, outcome.Suggestions.TotalAvailable)
	assert.Len(t, outcome.Suggestions.Items, 3)
	assert.Equal(t, CandidateID("docs:1"), outcome.Suggestions.Items[0].ID)
	// 建议阶段不得触发生成
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRetriever_TooFewCandidatesFallsThroughToAnswer(t *testing.T) {
	store := new(MockVectorStore)
	embedder := new(MockEmbedder)
	vec := stubQueryEmbedding(embedder)

	store.On("Nearest", mock.Anything, "docs", vec, 4, 0.3).Return([]Candidate{
		{ID: "docs:1", Table: "docs", SourceID: "a.pdf", Similarity: 0.9, Content: "c1"},
		{ID: "docs:2", Table: "docs", SourceID: "a.pdf", Similarity: 0.8, Content: "c2"},
	}, nil)

	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return("answer", nil)
	r := newTestRetriever(store, embedder, gen)
	outcome, err := r.Search(context.Background(), RetrievalRequest{
		Query: "q", Tables: []string{"docs"}, TopK: 4, SimilarityThreshold: 0.3, WantSuggestions: true,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswer, outcome.Kind)
	gen.AssertExpectations(t)
}

func TestRetriever_SelectionBypassesSuggestionDecision(t *testing.T) {
	store := new(MockVectorStore)
	embedder := new(MockEmbedder)
	vec := stubQueryEmbedding(embedder)

	store.On("Nearest", mock.Anything, "docs", vec, 4, 0.3).Return([]Candidate{
		{ID: "docs:1", Table: "docs", SourceID: "a.pdf", Similarity: 0.9, Content: "c1"},
		{ID: "docs:2", Table: "docs", SourceID: "a.pdf", Similarity: 0.8, Content: "c2"},
		{ID: "docs:3", Table: "docs", SourceID: "b.pdf", Similarity: 0.7, Content: "c3"},
	}, nil)

	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return("answer", nil)
	r := newTestRetriever(store, embedder, gen)
	outcome, err := r.Search(context.Background(), RetrievalRequest{
		Query: "q", Tables: []string{"docs"}, TopK: 4, SimilarityThreshold: 0.3,
		WantSuggestions: true,
		SelectedIDs:     []CandidateID{"docs:3", "docs:1", "docs:999", "docs:3"},
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeAnswer, outcome.Kind)
	// 未知ID与重复ID被丢弃，结果保持相似度排序而非选中顺序
	require.Len(t, outcome.Answer.Sources, 2)
	assert.Equal(t, "a.pdf", outcome.Answer.Sources[0].SourceID)
	assert.InDelta(t, 0.9, outcome.Answer.Sources[0].Similarity, 1e-9)
	assert.Equal(t, "b.pdf", outcome.Answer.Sources[1].SourceID)
	assert.InDelta(t, 0.7, outcome.Answer.Sources[1].Similarity, 1e-9)
}

func TestRetriever_EmptyCandidatesNeverCallGenerator(t *testing.T) {
	store := new(MockVectorStore)
	embedder := new(MockEmbedder)
	vec := stubQueryEmbedding(embedder)
	store.On("Nearest", mock.Anything, "docs", vec, 4, 0.3).Return([]Candidate{}, nil)

	gen := new(MockGenerator)
	r := newTestRetriever(store, embedder, gen)
	outcome, err := r.Search(context.Background(), RetrievalRequest{
		Query: "q", Tables: []string{"docs"}, TopK: 4, SimilarityThreshold: 0.3,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeAnswer, outcome.Kind)
	assert.Equal(t, NoInformationAnswer, outcome.Answer.Answer)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRetriever_DegradedFanOutSkipsFailingTable(t *testing.T) {
	store := new(MockVectorStore)
	embedder := new(MockEmbedder)
	vec := stubQueryEmbedding(embedder)

	store.On("Nearest", mock.Anything, "good", vec, 4, 0.3).Return([]Candidate{
		{ID: "good:1", Table: "good", SourceID: "a.pdf", Similarity: 0.9, Content: "c1"},
	}, nil)
	store.On("Nearest", mock.Anything, "bad", vec, 4, 0.3).
		Return(nil, apperrors.NewTableNotFoundError("bad"))

	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return("answer", nil)
	r := newTestRetriever(store, embedder, gen)
	outcome, err := r.Search(context.Background(), RetrievalRequest{
		Query: "q", Tables: []string{"good", "bad"}, TopK: 4, SimilarityThreshold: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, outcome.SkippedTables)
	require.Len(t, outcome.Answer.Sources, 1)
}

func TestRetriever_AllTablesFailedIsAnError(t *testing.T) {
	store := new(MockVectorStore)
	embedder := new(MockEmbedder)
	vec := stubQueryEmbedding(embedder)
	store.On("Nearest", mock.Anything, mock.Anything, vec, 4, 0.3).
		Return(nil, apperrors.NewDatabaseError("boom", nil))

	r := newTestRetriever(store, embedder, new(MockGenerator))
	_, err := r.Search(context.Background(), RetrievalRequest{
		Query: "q", Tables: []string{"a", "b"}, TopK: 4, SimilarityThreshold: 0.3,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePartialFanout, apperrors.GetAppError(err).Code)
}

func TestRetriever_PumpCatalogScenario(t *testing.T) {
	store := new(MockVectorStore)
	embedder := new(MockEmbedder)
	vec := stubQueryEmbedding(embedder)

	store.On("Nearest", mock.Anything, "pump_catalog", vec, 4, 0.3).Return([]Candidate{
		{ID: "pump_catalog:7", Table: "pump_catalog", SourceID: "catalog.pdf", Position: 3,
			Similarity: 0.91, Content: "Máy bơm ly tâm 5HP, lưu lượng 40m3/h, giá 5.000.000đ"},
		{ID: "pump_catalog:8", Table: "pump_catalog", SourceID: "catalog.pdf", Position: 4,
			Similarity: 0.42, Content: "Bảng giá phụ tùng bơm"},
	}, nil)

	synth := &capturingGenerator{}
	r := NewRetriever(store, embedder, NewSynthesizer(synth, 200), RetrieverOptions{MaxParallel: 4, MinSuggestions: 3})
	outcome, err := r.Search(context.Background(), RetrievalRequest{
		Query: "máy bơm 5HP giá bao nhiêu?", Tables: []string{"pump_catalog"},
		TopK: 4, SimilarityThreshold: 0.3,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeAnswer, outcome.Kind)
	require.Len(t, synth.prompts, 1)
	assert.Contains(t, synth.prompts[0], "Máy bơm ly tâm 5HP")
	assert.Contains(t, synth.prompts[0], "máy bơm 5HP giá bao nhiêu?")
	require.Len(t, outcome.Answer.Sources, 2)
	assert.Equal(t, 3, outcome.Answer.Sources[0].Position)
}

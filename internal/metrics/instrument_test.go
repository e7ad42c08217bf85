package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/thithi/rag-backend/internal/errors"
	"github.com/thithi/rag-backend/internal/rag"
)

// promauto只能注册一次，整个测试共享一个collector
var testCollector = NewCollector()

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2}
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 2 }

func (e *stubEmbedder) Ready(ctx context.Context) error { return nil }

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "câu trả lời", nil
}

func TestInstrumentEmbedder_RecordsBatches(t *testing.T) {
	e := InstrumentEmbedder(&stubEmbedder{}, testCollector)

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 2, e.Dimensions())
	assert.NoError(t, e.Ready(context.Background()))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(testCollector.embedBatchCounter.WithLabelValues("success")))

	failing := InstrumentEmbedder(&stubEmbedder{err: apperrors.NewEmbeddingProviderError("down", nil)}, testCollector)
	_, err = failing.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(testCollector.embedBatchCounter.WithLabelValues("error")))
}

func TestInstrumentGenerator_RecordsGenerations(t *testing.T) {
	g := InstrumentGenerator(&stubGenerator{}, testCollector)

	answer, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "câu trả lời", answer)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(testCollector.generateCounter.WithLabelValues("success")))
}

func TestInstrument_NilCollectorIsPassthrough(t *testing.T) {
	inner := &stubEmbedder{}
	assert.Same(t, rag.Embedder(inner), InstrumentEmbedder(inner, nil))
	gen := &stubGenerator{}
	assert.Same(t, rag.Generator(gen), InstrumentGenerator(gen, nil))
}

package metrics

import (
	"context"
	"time"

	"github.com/thithi/rag-backend/internal/rag"
)

// InstrumentEmbedder 包装Embedder，把每个批次计入embed指标
func InstrumentEmbedder(inner rag.Embedder, collector *Collector) rag.Embedder {
	if collector == nil {
		return inner
	}
	return &instrumentedEmbedder{inner: inner, collector: collector}
}

type instrumentedEmbedder struct {
	inner     rag.Embedder
	collector *Collector
}

func (e *instrumentedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := e.inner.EmbedBatch(ctx, texts)
	e.collector.RecordEmbedBatch(time.Since(start), err)
	return vectors, err
}

func (e *instrumentedEmbedder) Dimensions() int { return e.inner.Dimensions() }

func (e *instrumentedEmbedder) Ready(ctx context.Context) error { return e.inner.Ready(ctx) }

// InstrumentGenerator 包装Generator，把每次生成计入generate指标
func InstrumentGenerator(inner rag.Generator, collector *Collector) rag.Generator {
	if collector == nil {
		return inner
	}
	return &instrumentedGenerator{inner: inner, collector: collector}
}

type instrumentedGenerator struct {
	inner     rag.Generator
	collector *Collector
}

func (g *instrumentedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	answer, err := g.inner.Generate(ctx, prompt)
	g.collector.RecordGeneration(err)
	return answer, err
}

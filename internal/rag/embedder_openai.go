package rag

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "github.com/thithi/rag-backend/internal/errors"
	"github.com/thithi/rag-backend/internal/logger"
)

// OpenAIEmbedder 走OpenAI兼容embedding接口的提供方
// 支持自定义base_url，可对接任何兼容网关。
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchLimit int
	retry      RetryPolicy
}

// NewOpenAIEmbedder 创建OpenAI兼容embedding客户端
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
		batchLimit: defaultEmbedBatchLimit,
		retry:      DefaultRetryPolicy(),
	}
}

// WithRetryPolicy 覆盖默认重试策略
func (e *OpenAIEmbedder) WithRetryPolicy(p RetryPolicy) *OpenAIEmbedder {
	e.retry = p
	return e
}

// WithBatchLimit 覆盖provider单次调用的条数上限
func (e *OpenAIEmbedder) WithBatchLimit(limit int) *OpenAIEmbedder {
	if limit > 0 {
		e.batchLimit = limit
	}
	return e
}

// EmbedBatch 向量化一批文本，超过上限时内部切分子批顺序调用
// 任一子批失败则整次调用失败，结果按输入顺序返回。
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := validateBatchTexts(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, sub := range splitBatch(texts, e.batchLimit) {
		subVectors, err := e.embedSubBatch(ctx, sub)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, subVectors...)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) embedSubBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp openai.EmbeddingResponse
	err := e.retry.Do(ctx, "openai_embed", func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(e.model),
		})
		if callErr != nil {
			logger.Error("embedding调用失败", zap.Error(callErr), zap.String("model", e.model))
			return apperrors.NewEmbeddingProviderError("embedding provider call failed", callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// provider按index返回，重排成输入顺序
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, apperrors.NewEmbeddingProviderError("provider returned out-of-range index", nil)
		}
		vectors[d.Index] = d.Embedding
	}
	if err := checkBatchResult(texts, vectors, e.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Ready 用单条最小请求探测provider可用性
func (e *OpenAIEmbedder) Ready(ctx context.Context) error {
	_, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{"ping"},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return apperrors.NewEmbeddingProviderError("embedding provider not ready", err)
	}
	return nil
}

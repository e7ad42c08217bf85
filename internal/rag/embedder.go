package rag

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/thithi/rag-backend/internal/errors"
)

// defaultEmbedBatchLimit provider单次调用的默认条数上限
const defaultEmbedBatchLimit = 64

// Embedder 向量化提供方抽象
// EmbedBatch必须按输入顺序返回等长的向量切片；任何一条失败则整批失败，
// 不返回部分结果。
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Ready(ctx context.Context) error
}

// EmbedQuery 单条查询向量化的便捷入口
func EmbedQuery(ctx context.Context, e Embedder, query string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, apperrors.NewEmbeddingProviderError("provider returned wrong vector count", nil)
	}
	return vectors[0], nil
}

// validateBatchTexts 拒绝空与纯空白文本
func validateBatchTexts(texts []string) error {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return apperrors.NewInvalidInputError("texts", fmt.Sprintf("empty or whitespace-only text at index %d", i))
		}
	}
	return nil
}

// splitBatch 按provider条数上限切分子批，保持输入顺序
func splitBatch(texts []string, limit int) [][]string {
	if limit <= 0 || len(texts) <= limit {
		return [][]string{texts}
	}
	var subs [][]string
	for start := 0; start < len(texts); start += limit {
		end := start + limit
		if end > len(texts) {
			end = len(texts)
		}
		subs = append(subs, texts[start:end])
	}
	return subs
}

// checkBatchResult 校验provider返回形状：条数与维度都必须一致
func checkBatchResult(texts []string, vectors [][]float32, wantDim int) error {
	if len(vectors) != len(texts) {
		return apperrors.NewEmbeddingProviderError("provider returned mismatched vector count", nil).
			WithDetails(map[string]interface{}{
				"expected": len(texts),
				"got":      len(vectors),
			})
	}
	for i, v := range vectors {
		if len(v) != wantDim {
			return apperrors.NewEmbeddingProviderError("provider returned wrong dimension", nil).
				WithDetails(map[string]interface{}{
					"index":    i,
					"expected": wantDim,
					"got":      len(v),
				})
		}
	}
	return nil
}

// NoopEmbedder 固定零向量实现，供降级与测试布线使用
type NoopEmbedder struct {
	Dim int
}

func (n *NoopEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, n.Dim)
	}
	return vectors, nil
}

func (n *NoopEmbedder) Dimensions() int { return n.Dim }

func (n *NoopEmbedder) Ready(ctx context.Context) error { return nil }

package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/thithi/rag-backend/internal/errors"
	"github.com/thithi/rag-backend/internal/logger"
)

// HTTPEmbedder 调用向量化sidecar服务的客户端
// 协议: POST {baseURL}/vectorize  {"texts":[...]} -> {"vectors":[[...]],"dimension":n}
type HTTPEmbedder struct {
	baseURL    string
	dimensions int
	batchLimit int
	httpClient *http.Client
	retry      RetryPolicy
}

// NewHTTPEmbedder 创建sidecar客户端
func NewHTTPEmbedder(baseURL string, dimensions int, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		baseURL:    baseURL,
		dimensions: dimensions,
		batchLimit: defaultEmbedBatchLimit,
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryPolicy(),
	}
}

// WithRetryPolicy 覆盖默认重试策略
func (e *HTTPEmbedder) WithRetryPolicy(p RetryPolicy) *HTTPEmbedder {
	e.retry = p
	return e
}

// WithBatchLimit 覆盖provider单次调用的条数上限
func (e *HTTPEmbedder) WithBatchLimit(limit int) *HTTPEmbedder {
	if limit > 0 {
		e.batchLimit = limit
	}
	return e
}

type vectorizeRequest struct {
	Texts []string `json:"texts"`
}

type vectorizeResponse struct {
	Vectors   [][]float32 `json:"vectors"`
	Dimension int         `json:"dimension"`
}

// EmbedBatch 向量化一批文本，超过上限时内部切分子批顺序调用
// 任一子批失败则整次调用失败，结果按输入顺序返回。
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := validateBatchTexts(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, sub := range splitBatch(texts, e.batchLimit) {
		var result vectorizeResponse
		err := e.retry.Do(ctx, "vectorize", func(ctx context.Context) error {
			return e.post(ctx, sub, &result)
		})
		if err != nil {
			return nil, err
		}
		if err := checkBatchResult(sub, result.Vectors, e.dimensions); err != nil {
			return nil, err
		}
		vectors = append(vectors, result.Vectors...)
	}
	return vectors, nil
}

func (e *HTTPEmbedder) post(ctx context.Context, texts []string, out *vectorizeResponse) error {
	body, err := json.Marshal(vectorizeRequest{Texts: texts})
	if err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "marshal vectorize request failed").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/vectorize", bytes.NewReader(body))
	if err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "build vectorize request failed").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		logger.Error("向量化服务请求失败", zap.Error(err), zap.Int("batch_size", len(texts)))
		return apperrors.NewEmbeddingProviderError("vectorize service unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewEmbeddingProviderError("read vectorize response failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error("向量化服务返回错误",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)))
		return apperrors.NewEmbeddingProviderError(
			fmt.Sprintf("vectorize service returned status %d", resp.StatusCode), nil)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return apperrors.NewEmbeddingProviderError("decode vectorize response failed", err)
	}

	logger.Debug("向量化完成",
		zap.Int("batch_size", len(texts)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (e *HTTPEmbedder) Dimensions() int { return e.dimensions }

// Ready 探活sidecar的/health端点
func (e *HTTPEmbedder) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "build health request failed").WithCause(err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return apperrors.NewEmbeddingProviderError("vectorize service unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperrors.NewEmbeddingProviderError(
			fmt.Sprintf("vectorize service health returned %d", resp.StatusCode), nil)
	}
	return nil
}

package rag

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "github.com/thithi/rag-backend/internal/errors"
	"github.com/thithi/rag-backend/internal/logger"
)

// Generator 文本生成抽象，答案合成时调用
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator 走OpenAI兼容chat接口的生成实现
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	retry       RetryPolicy
}

// NewOpenAIGenerator 创建chat生成客户端，baseURL为空时走官方端点
func NewOpenAIGenerator(apiKey, baseURL, model string, temperature float32) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		retry:       DefaultRetryPolicy(),
	}
}

// WithRetryPolicy 覆盖默认重试策略
func (g *OpenAIGenerator) WithRetryPolicy(p RetryPolicy) *OpenAIGenerator {
	g.retry = p
	return g
}

// Generate 单轮补全
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var resp openai.ChatCompletionResponse
	err := g.retry.Do(ctx, "chat_completion", func(ctx context.Context) error {
		var callErr error
		resp, callErr = g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       g.model,
			Temperature: g.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if callErr != nil {
			logger.Error("生成调用失败", zap.Error(callErr), zap.String("model", g.model))
			return apperrors.NewGenerationError("chat completion failed", callErr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewGenerationError("model returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

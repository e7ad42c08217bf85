package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/thithi/rag-backend/internal/errors"
)

func TestRetryPolicy_SucceedsAfterTransientFailure(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), "embed", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.NewEmbeddingProviderError("provider unavailable", nil)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_NonRetryableFailsImmediately(t *testing.T) {
	p := DefaultRetryPolicy()
	calls := 0
	err := p.Do(context.Background(), "embed", func(ctx context.Context) error {
		calls++
		return apperrors.NewInvalidInputError("query", "must not be empty")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), "generate", func(ctx context.Context) error {
		calls++
		return apperrors.NewGenerationError("model overloaded", nil)
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicy_ContextCancelStopsBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, "embed", func(ctx context.Context) error {
		return apperrors.NewEmbeddingProviderError("timeout", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

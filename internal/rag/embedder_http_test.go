package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/thithi/rag-backend/internal/errors"
)

func newVectorizeServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.Equal(t, "/vectorize", r.URL.Path)
		var req vectorizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := vectorizeResponse{Dimension: dim}
		for i := range req.Texts {
			v := make([]float32, dim)
			v[0] = float32(i + 1)
			resp.Vectors = append(resp.Vectors, v)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPEmbedder_BatchPreservesOrder(t *testing.T) {
	srv := newVectorizeServer(t, 4)
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, 4, time.Second)
	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])
	assert.Equal(t, float32(3), vectors[2][0])
}

func TestHTTPEmbedder_EmptyBatchIsNoop(t *testing.T) {
	e := NewHTTPEmbedder("http://127.0.0.1:0", 4, time.Second)
	vectors, err := e.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestHTTPEmbedder_EmptyTextRejectedBeforeCall(t *testing.T) {
	e := NewHTTPEmbedder("http://127.0.0.1:0", 4, time.Second)
	_, err := e.EmbedBatch(context.Background(), []string{"ok", ""})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, appErr.Code)
}

func TestHTTPEmbedder_WhitespaceOnlyTextRejected(t *testing.T) {
	e := NewHTTPEmbedder("http://127.0.0.1:0", 4, time.Second)
	_, err := e.EmbedBatch(context.Background(), []string{"ok", " \t\n "})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetAppError(err).Code)
}

func TestHTTPEmbedder_SplitsIntoProviderSizedBatches(t *testing.T) {
	var callSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req vectorizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		callSizes = append(callSizes, len(req.Texts))
		resp := vectorizeResponse{Dimension: 2}
		for _, text := range req.Texts {
			resp.Vectors = append(resp.Vectors, []float32{float32(len(text)), 0})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, 2, time.Second).WithBatchLimit(2)
	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, callSizes)
	// 子批拼接后仍按输入顺序
	require.Len(t, vectors, 5)
	for i, want := range []float32{1, 2, 3, 4, 5} {
		assert.Equal(t, want, vectors[i][0])
	}
}

func TestHTTPEmbedder_DimensionMismatchFailsWholeBatch(t *testing.T) {
	srv := newVectorizeServer(t, 3)
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, 4, time.Second)
	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeEmbeddingProvider, appErr.Code)
}

func TestHTTPEmbedder_ServerErrorIsRetriedThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, 4, time.Second)
	e.retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestHTTPEmbedder_Ready(t *testing.T) {
	srv := newVectorizeServer(t, 4)
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, 4, time.Second)
	assert.NoError(t, e.Ready(context.Background()))
}

func TestEmbedQuery_SingleVector(t *testing.T) {
	srv := newVectorizeServer(t, 4)
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, 4, time.Second)
	vec, err := EmbedQuery(context.Background(), e, "máy bơm 5HP")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

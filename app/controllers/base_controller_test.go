package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	beecontext "github.com/beego/beego/v2/server/web/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/thithi/rag-backend/internal/errors"
)

func newTestBaseController(t *testing.T) (*BaseController, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := beecontext.NewContext()
	ctx.Reset(w, r)
	c := &BaseController{}
	c.Init(ctx, "BaseController", "", nil)
	return c, w
}

func TestBaseController_JSONAppErrorMapsHTTPCode(t *testing.T) {
	c, w := newTestBaseController(t)
	c.JSONAppError(apperrors.NewInvalidInputError("query", "must not be empty"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, string(apperrors.ErrCodeInvalidInput), payload["code"])
	// 无details时不输出details字段
	_, hasDetails := payload["details"]
	assert.False(t, hasDetails)
}

func TestBaseController_JSONAppErrorIncludesDetails(t *testing.T) {
	c, w := newTestBaseController(t)
	err := apperrors.NewEmbeddingProviderError("provider returned wrong dimension", nil).
		WithDetails(map[string]interface{}{"expected": 384, "got": 3})
	c.JSONAppError(err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	details, ok := payload["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(384), details["expected"])
}

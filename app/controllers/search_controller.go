package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/thithi/rag-backend/internal/logger"
	"github.com/thithi/rag-backend/internal/rag"
	"github.com/thithi/rag-backend/internal/services"
)

var validate = validator.New()

// SearchController 向量检索与问答控制器
type SearchController struct {
	BaseController
}

// VectorSearchRequest 检索请求体
// tableName/topN/similarityThreshold沿用旧版API字段名
type VectorSearchRequest struct {
	Query               string   `json:"query" validate:"required,min=1"`
	TableName           string   `json:"tableName"`
	Tables              []string `json:"tables" validate:"omitempty,dive,min=1"`
	TopN                int      `json:"topN" validate:"omitempty,gte=1,lte=100"`
	SimilarityThreshold *float64 `json:"similarityThreshold" validate:"omitempty,gte=0,lte=1"`
	WantSuggestions     bool     `json:"wantSuggestions"`
	SelectedIDs         []string `json:"selectedIds"`
}

func (r *VectorSearchRequest) toServiceRequest() services.SearchRequest {
	tables := r.Tables
	if len(tables) == 0 && r.TableName != "" {
		tables = []string{r.TableName}
	}
	return services.SearchRequest{
		Query:               r.Query,
		Tables:              tables,
		TopN:                r.TopN,
		SimilarityThreshold: r.SimilarityThreshold,
		WantSuggestions:     r.WantSuggestions,
		SelectedIDs:         r.SelectedIDs,
	}
}

// VectorSearch 两阶段检索入口
// 候选足够且客户端要求建议时返回建议集，否则直接返回答案；
// 带selectedIds的第二阶段调用总是返回答案。
func (c *SearchController) VectorSearch() {
	var req VectorSearchRequest
	if !c.parseAndValidate(&req) {
		return
	}

	outcome, err := ragService.Search(c.Ctx.Request.Context(), req.toServiceRequest())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(outcome)
}

// Chat 单阶段问答入口，跳过建议协议直接合成答案
func (c *SearchController) Chat() {
	var req VectorSearchRequest
	if !c.parseAndValidate(&req) {
		return
	}
	req.WantSuggestions = false
	req.SelectedIDs = nil

	outcome, err := ragService.Search(c.Ctx.Request.Context(), req.toServiceRequest())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	if outcome.Kind != rag.OutcomeAnswer || outcome.Answer == nil {
		c.JSONError(http.StatusInternalServerError, "unexpected search outcome")
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"answer":         outcome.Answer.Answer,
		"sources":        outcome.Answer.Sources,
		"skipped_tables": outcome.SkippedTables,
	})
}

func (c *SearchController) parseAndValidate(req *VectorSearchRequest) bool {
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(req); err != nil {
		logger.Debug("检索请求校验失败",
			zap.String("ip", c.getClientIP()),
			zap.Error(err))
		c.JSONError(http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

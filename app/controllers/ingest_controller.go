package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/thithi/rag-backend/internal/rag"
	"github.com/thithi/rag-backend/internal/services"
)

// IngestController 文档摄取控制器
type IngestController struct {
	BaseController
}

// IngestRequestBody 摄取请求体，文件解析由调用方完成
type IngestRequestBody struct {
	TableName string         `json:"tableName"`
	Documents []IngestedUnit `json:"documents" validate:"required,min=1,dive"`
}

// IngestedUnit 一个已解析的内容单元
type IngestedUnit struct {
	SourceID string `json:"sourceId" validate:"required"`
	Position int    `json:"position" validate:"gte=0"`
	Text     string `json:"text"`
}

// Ingest 摄取一批内容单元
// 单批失败不影响其他批，响应里的计数反映部分成功。
func (c *IngestController) Ingest() {
	var req IngestRequestBody
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, err.Error())
		return
	}

	docs := make([]rag.SourceDocument, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, rag.SourceDocument{
			SourceID: d.SourceID,
			Position: d.Position,
			Text:     d.Text,
		})
	}

	report, err := ragService.Ingest(c.Ctx.Request.Context(), services.IngestRequest{
		Table:     req.TableName,
		Documents: docs,
	})
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(report)
}

// Stats 返回逻辑表的向量行数
func (c *IngestController) Stats() {
	table := c.GetString("tableName")
	count, err := ragService.TableStats(c.Ctx.Request.Context(), table)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"table": table,
		"rows":  count,
	})
}

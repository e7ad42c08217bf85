package controllers

import (
	"net/http"
	"strings"

	"github.com/beego/beego/v2/server/web"

	apperrors "github.com/thithi/rag-backend/internal/errors"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// JSONAppError 按错误类型映射HTTP状态码并输出错误envelope
func (c *BaseController) JSONAppError(err error) {
	appErr := apperrors.GetAppError(err)
	payload := map[string]interface{}{
		"success": false,
		"error":   appErr.Message,
		"code":    appErr.Code,
	}
	if appErr.RequestID != "" {
		payload["request_id"] = appErr.RequestID
	}
	if appErr.Details != nil {
		payload["details"] = appErr.Details
	}
	c.JSON(appErr.HTTPCode, payload)
}

// getClientIP 获取客户端真实IP地址
func (c *BaseController) getClientIP() string {
	xForwardedFor := c.Ctx.Input.Header("X-Forwarded-For")
	if xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}
	if xRealIP := c.Ctx.Input.Header("X-Real-IP"); xRealIP != "" {
		return xRealIP
	}
	return c.Ctx.Input.IP()
}

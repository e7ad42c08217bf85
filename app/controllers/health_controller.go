package controllers

import (
	"net/http"
	"time"
)

// RootController 根路径
type RootController struct {
	BaseController
}

// Index 服务标识
func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "rag-backend",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
}

// Health 存活与就绪探测
// 数据库状态取自后台健康检查器，向量化provider按需探测。
func (c *HealthController) Health() {
	status := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}

	healthy := true
	if healthChecker != nil {
		result := healthChecker.Result()
		status["database"] = map[string]interface{}{
			"healthy":       result.Healthy,
			"response_time": result.ResponseTime,
			"last_check":    result.LastCheck.Format(time.RFC3339),
		}
		if !result.Healthy {
			healthy = false
		}
	}

	if ragService != nil {
		if err := ragService.Ready(c.Ctx.Request.Context()); err != nil {
			status["embedding"] = map[string]interface{}{
				"ready": false,
				"error": err.Error(),
			}
			healthy = false
		} else {
			status["embedding"] = map[string]interface{}{"ready": true}
		}
	}

	if !healthy {
		status["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

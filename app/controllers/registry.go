package controllers

import (
	"github.com/thithi/rag-backend/internal/database"
	"github.com/thithi/rag-backend/internal/services"
)

// beego按请求反射新建controller实例，注入的字段不会保留，
// 所以服务句柄放在包级registry，由bootstrap启动时填一次。
var (
	ragService    *services.RAGService
	healthChecker *database.HealthChecker
)

// SetRAGService 注册检索问答服务
func SetRAGService(svc *services.RAGService) {
	ragService = svc
}

// SetHealthChecker 注册数据库健康检查器
func SetHealthChecker(hc *database.HealthChecker) {
	healthChecker = hc
}

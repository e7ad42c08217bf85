package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/thithi/rag-backend/app/bootstrap"
	"github.com/thithi/rag-backend/app/router"
	"github.com/thithi/rag-backend/internal/config"
	"github.com/thithi/rag-backend/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init()

	web.BConfig.AppName = "RAG Service"
	web.BConfig.CopyRequestBody = true
	if p, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	}

	logger.Info("🚀 Starting RAG Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}

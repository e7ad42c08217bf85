package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thithi/rag-backend/app/controllers"
	"github.com/thithi/rag-backend/internal/config"
)

// Init registers all routes. Must be called after config is loaded.
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")

	searchController := &controllers.SearchController{}
	web.Router("/api/search/vector", searchController, "post:VectorSearch")
	web.Router("/api/chat", searchController, "post:Chat")

	ingestController := &controllers.IngestController{}
	web.Router("/api/ingest", ingestController, "post:Ingest")
	web.Router("/api/ingest/stats", ingestController, "get:Stats")

	if config.AppConfig != nil && config.AppConfig.Prometheus.Enabled {
		web.Handler("/metrics", promhttp.Handler())
	}
}

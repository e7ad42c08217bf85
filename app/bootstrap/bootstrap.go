package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/thithi/rag-backend/app/controllers"
	"github.com/thithi/rag-backend/internal/config"
	"github.com/thithi/rag-backend/internal/database"
	"github.com/thithi/rag-backend/internal/logger"
	"github.com/thithi/rag-backend/internal/metrics"
	"github.com/thithi/rag-backend/internal/rag"
	"github.com/thithi/rag-backend/internal/services"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
	container    *dig.Container
}

// Container exposes the DI container for auxiliary wiring.
func (a *App) Container() *dig.Container {
	return a.container
}

// Init bootstraps configuration, logger, database and the retrieval pipeline
// required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	app := &App{container: dig.New()}

	// Initialize database.
	db, err := database.InitDB()
	if err != nil {
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		return database.CloseDB()
	})

	// 默认逻辑表不存在时建表，失败只警告，迁移工具负责最终一致
	cfg := config.AppConfig
	if err := database.EnsureChunkTable(db, cfg.RAG.DefaultTable, cfg.RAG.EmbeddingDimension); err != nil {
		logger.Warn("初始化默认逻辑表失败", zap.Error(err))
	}

	// Start background database health checks.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	healthChecker := database.NewHealthChecker(sqlDB, logrus.New())
	hcCtx, hcCancel := context.WithCancel(context.Background())
	go healthChecker.Start(hcCtx)
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		hcCancel()
		healthChecker.Stop()
		return nil
	})

	if err := app.buildContainer(db); err != nil {
		return nil, err
	}

	// beego controllers are re-created per request, hand them the services once.
	err = app.container.Invoke(func(svc *services.RAGService) {
		controllers.SetRAGService(svc)
		controllers.SetHealthChecker(healthChecker)
	})
	if err != nil {
		return nil, err
	}

	return app, nil
}

// buildContainer 注册检索管线的全部构造器
func (a *App) buildContainer(db *gorm.DB) error {
	providers := []interface{}{
		func() *config.Config { return config.AppConfig },
		func() *gorm.DB { return db },
		newEmbedder,
		a.newVectorStore,
		newGenerator,
		newChunker,
		newSynthesizer,
		newRetriever,
		newIngester,
		newCollector,
		newRAGService,
	}
	for _, p := range providers {
		if err := a.container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

func newEmbedder(cfg *config.Config, collector *metrics.Collector) rag.Embedder {
	ec := cfg.Embedding
	retry := rag.RetryPolicy{
		MaxAttempts: ec.MaxRetries,
		BaseDelay:   ec.RetryDelay(),
		MaxDelay:    3 * time.Second,
	}
	var embedder rag.Embedder
	switch ec.Provider {
	case "openai":
		logger.Info("使用OpenAI兼容embedding provider", zap.String("model", ec.Model))
		embedder = rag.NewOpenAIEmbedder(ec.APIKey, "", ec.Model, cfg.RAG.EmbeddingDimension).
			WithRetryPolicy(retry).
			WithBatchLimit(ec.BatchLimit)
	default:
		logger.Info("使用向量化sidecar", zap.String("url", ec.VectorizeURL))
		embedder = rag.NewHTTPEmbedder(ec.VectorizeURL, cfg.RAG.EmbeddingDimension,
			time.Duration(ec.TimeoutSec)*time.Second).
			WithRetryPolicy(retry).
			WithBatchLimit(ec.BatchLimit)
	}
	return metrics.InstrumentEmbedder(embedder, collector)
}

func (a *App) newVectorStore(cfg *config.Config, db *gorm.DB) (rag.VectorStore, error) {
	if cfg.VectorStore.Provider == "milvus" {
		mc := cfg.VectorStore.Milvus
		store, err := rag.NewMilvusVectorStore(rag.MilvusOptions{
			Address:          mc.Address,
			Username:         mc.Username,
			Password:         mc.Password,
			CollectionPrefix: mc.CollectionPrefix,
			Database:         mc.Database,
			UseTLS:           mc.TLS,
		}, cfg.RAG.EmbeddingDimension)
		if err != nil {
			return nil, err
		}
		a.cleanupTasks = append(a.cleanupTasks, store.Close)
		logger.Info("使用Milvus向量存储", zap.String("address", mc.Address))
		return store, nil
	}
	return rag.NewDBVectorStore(db, cfg.RAG.EmbeddingDimension), nil
}

func newGenerator(cfg *config.Config, collector *metrics.Collector) rag.Generator {
	lc := cfg.LLM
	gen := rag.NewOpenAIGenerator(lc.APIKey, lc.BaseURL, lc.Model, float32(lc.Temperature)).
		WithRetryPolicy(rag.RetryPolicy{
			MaxAttempts: lc.MaxRetries,
			BaseDelay:   lc.RetryDelay(),
			MaxDelay:    5 * time.Second,
		})
	return metrics.InstrumentGenerator(gen, collector)
}

func newChunker(cfg *config.Config) *rag.Chunker {
	return rag.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
}

func newSynthesizer(gen rag.Generator, cfg *config.Config) *rag.Synthesizer {
	return rag.NewSynthesizer(gen, cfg.RAG.PreviewLength)
}

func newRetriever(store rag.VectorStore, embedder rag.Embedder, synthesizer *rag.Synthesizer, cfg *config.Config) *rag.Retriever {
	return rag.NewRetriever(store, embedder, synthesizer, rag.RetrieverOptions{
		DefaultTopK:        cfg.RAG.DefaultTopK,
		DefaultThreshold:   cfg.RAG.DefaultThreshold,
		MinSuggestions:     cfg.RAG.MinSuggestions,
		SuggestionPageSize: cfg.RAG.SuggestionPageSize,
		PreviewLength:      cfg.RAG.PreviewLength,
		MaxParallel:        cfg.RAG.MaxParallel,
	})
}

func newIngester(store rag.VectorStore, embedder rag.Embedder, chunker *rag.Chunker, cfg *config.Config) *rag.Ingester {
	return rag.NewIngester(store, embedder, chunker, rag.IngesterOptions{
		BatchSize:   cfg.RAG.BatchSize,
		MaxParallel: cfg.RAG.MaxParallel,
	})
}

func newCollector(cfg *config.Config) *metrics.Collector {
	if !cfg.Prometheus.Enabled {
		return nil
	}
	return metrics.NewCollector()
}

func newRAGService(retriever *rag.Retriever, ingester *rag.Ingester, embedder rag.Embedder, store rag.VectorStore, collector *metrics.Collector, cfg *config.Config) *services.RAGService {
	return services.NewRAGService(retriever, ingester, embedder, store, collector, cfg.RAG)
}

// Shutdown flushes logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}
	logger.Sync()
}

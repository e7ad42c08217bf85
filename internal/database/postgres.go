package database

import (
	"fmt"
	"log"

	"github.com/thithi/rag-backend/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB() (*gorm.DB, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	// 确保pgvector扩展可用（表结构由cmd/migrate管理）
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		log.Printf("⚠️  Failed to ensure pgvector extension (may lack privilege): %v", err)
	}

	DB = db
	log.Println("✅ Database connected successfully")
	return db, nil
}

// EnsureChunkTable 按需创建一张逻辑表（与migration 000002的结构一致）
// 动态表名无法交给AutoMigrate，这里用参数化维度拼出固定模板。
func EnsureChunkTable(db *gorm.DB, table string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", dimension)
	}
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %q (
			id bigserial PRIMARY KEY,
			content text NOT NULL,
			source_id varchar(500),
			position integer,
			sequence_index integer,
			embedding vector(%d),
			created_at timestamptz DEFAULT NOW()
		)
	`, table, dimension)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

func CloseDB() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

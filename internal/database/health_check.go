package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthChecker 数据库健康检查器
type HealthChecker struct {
	db            *sql.DB
	logger        *logrus.Logger
	checkInterval time.Duration
	isHealthy     bool
	lastCheck     time.Time
	lastError     error
	lastLatency   time.Duration
	mu            sync.RWMutex
	stopChan      chan struct{}
	running       bool
}

// HealthCheckResult 健康检查结果
type HealthCheckResult struct {
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	ResponseTime string    `json:"response_time,omitempty"`
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(db *sql.DB, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		db:            db,
		logger:        logger,
		checkInterval: 30 * time.Second,
		stopChan:      make(chan struct{}),
	}
}

// SetCheckInterval 设置检查间隔
func (hc *HealthChecker) SetCheckInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkInterval = interval
}

// Start 开始周期性健康检查（阻塞，应在goroutine中调用）
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = true
	hc.mu.Unlock()

	hc.logger.Info("Starting database health checker")

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	hc.checkAndUpdate(ctx)

	for {
		select {
		case <-ctx.Done():
			hc.stop()
			return
		case <-hc.stopChan:
			hc.stop()
			return
		case <-ticker.C:
			hc.checkAndUpdate(ctx)
		}
	}
}

func (hc *HealthChecker) stop() {
	hc.mu.Lock()
	hc.running = false
	hc.mu.Unlock()
	hc.logger.Info("Database health checker stopped")
}

// Stop 停止健康检查
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if !hc.running {
		return
	}
	close(hc.stopChan)
}

// Check 执行单次健康检查
func (hc *HealthChecker) Check(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := hc.db.PingContext(ctx)
	latency := time.Since(start)

	hc.mu.Lock()
	hc.lastCheck = time.Now()
	hc.lastError = err
	hc.lastLatency = latency
	hc.isHealthy = err == nil
	hc.mu.Unlock()

	if err != nil {
		hc.logger.WithError(err).Warn("Database health check failed")
		return err
	}
	return nil
}

func (hc *HealthChecker) checkAndUpdate(ctx context.Context) {
	_ = hc.Check(ctx)
}

// IsHealthy 返回最近一次检查结果
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.isHealthy
}

// Result 返回可序列化的检查结果
func (hc *HealthChecker) Result() HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := HealthCheckResult{
		Healthy:      hc.isHealthy,
		LastCheck:    hc.lastCheck,
		ResponseTime: hc.lastLatency.String(),
	}
	if hc.lastError != nil {
		result.LastError = hc.lastError.Error()
	}
	return result
}

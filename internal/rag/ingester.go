package rag

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thithi/rag-backend/internal/logger"
)

// IngesterOptions 摄取行为参数
type IngesterOptions struct {
	BatchSize   int
	MaxParallel int
}

// Ingester 摄取协调器：切块、分批向量化、写入向量存储
// 批与批相互隔离，单批失败只丢该批，整体继续。
type Ingester struct {
	store    VectorStore
	embedder Embedder
	chunker  *Chunker
	opts     IngesterOptions
}

// NewIngester 创建摄取协调器
func NewIngester(store VectorStore, embedder Embedder, chunker *Chunker, opts IngesterOptions) *Ingester {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	return &Ingester{store: store, embedder: embedder, chunker: chunker, opts: opts}
}

// Ingest 把一组内容单元摄取到逻辑表
// 向量化按批并发，对同一张表的写入串行执行；
// 返回的报告反映部分成功，整体error只在输入非法时出现。
func (ing *Ingester) Ingest(ctx context.Context, table string, docs []SourceDocument) (*IngestReport, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}

	emptyDocs := 0
	var pending []ChunkInsert
	for _, doc := range docs {
		chunks := ing.chunker.Split(doc.Text)
		if len(chunks) == 0 {
			emptyDocs++
			continue
		}
		for _, chunk := range chunks {
			pending = append(pending, ChunkInsert{
				Content:       chunk.Text,
				SourceID:      doc.SourceID,
				Position:      doc.Position,
				SequenceIndex: chunk.SequenceIndex,
			})
		}
	}

	// 空内容单元切不出chunk，按跳过计数，报告覆盖全部输入
	report := &IngestReport{Attempted: len(pending) + emptyDocs, Skipped: emptyDocs}
	if len(pending) == 0 {
		return report, nil
	}

	var batches [][]ChunkInsert
	for start := 0; start < len(pending); start += ing.opts.BatchSize {
		end := start + ing.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batches = append(batches, pending[start:end])
	}

	var (
		mu      sync.Mutex // 保护report
		writeMu sync.Mutex // 同一张表的写入串行
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, ing.opts.MaxParallel)
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []ChunkInsert) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			ing.processBatch(ctx, table, i, batch, report, &mu, &writeMu)
		}(i, batch)
	}
	wg.Wait()

	logger.Info("摄取完成",
		zap.String("table", table),
		zap.Int("attempted", report.Attempted),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func (ing *Ingester) processBatch(ctx context.Context, table string, idx int, batch []ChunkInsert, report *IngestReport, mu, writeMu *sync.Mutex) {
	texts := make([]string, len(batch))
	for i, row := range batch {
		texts[i] = row.Content
	}

	vectors, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Warn("批次向量化失败，整批跳过",
			zap.String("table", table),
			zap.Int("batch", idx),
			zap.Error(err))
		mu.Lock()
		report.Skipped += len(batch)
		report.Failures = append(report.Failures, fmt.Sprintf("batch %d: embed: %v", idx, err))
		mu.Unlock()
		return
	}
	for i := range batch {
		batch[i].Embedding = vectors[i]
	}

	mu.Lock()
	report.Embedded += len(batch)
	mu.Unlock()

	writeMu.Lock()
	inserted, skippedRows, err := ing.store.UpsertBatch(ctx, table, batch)
	writeMu.Unlock()
	if err != nil {
		logger.Warn("批次写入失败，整批跳过",
			zap.String("table", table),
			zap.Int("batch", idx),
			zap.Error(err))
		mu.Lock()
		report.Skipped += len(batch)
		report.Failures = append(report.Failures, fmt.Sprintf("batch %d: insert: %v", idx, err))
		mu.Unlock()
		return
	}

	mu.Lock()
	report.Inserted += inserted
	report.Skipped += skippedRows
	mu.Unlock()
}

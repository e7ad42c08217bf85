package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector RAG流水线指标收集器
type Collector struct {
	searchCounter      *prometheus.CounterVec
	searchDuration     *prometheus.HistogramVec
	candidatesGathered prometheus.Histogram
	tablesSkipped      prometheus.Counter
	embedBatchCounter  *prometheus.CounterVec
	embedDuration      prometheus.Histogram
	generateCounter    *prometheus.CounterVec
	ingestChunks       *prometheus.CounterVec
	ingestDuration     prometheus.Histogram
}

// NewCollector 注册并返回流水线指标
func NewCollector() *Collector {
	return &Collector{
		searchCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_search_total",
				Help: "Total number of search requests by outcome",
			},
			[]string{"outcome", "status"}, // outcome: answer, suggestions
		),
		searchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_search_duration_seconds",
				Help:    "Duration of search requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		candidatesGathered: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_search_candidates",
				Help:    "Number of candidates gathered per search",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
			},
		),
		tablesSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_search_skipped_tables_total",
				Help: "Total number of tables skipped during fan-out",
			},
		),
		embedBatchCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_embed_batches_total",
				Help: "Total number of embedding batches by status",
			},
			[]string{"status"},
		),
		embedDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_embed_duration_seconds",
				Help:    "Duration of embedding batches",
				Buckets: prometheus.DefBuckets,
			},
		),
		generateCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_generate_total",
				Help: "Total number of answer generations by status",
			},
			[]string{"status"},
		),
		ingestChunks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_ingest_chunks_total",
				Help: "Total number of ingested chunks by result",
			},
			[]string{"result"}, // result: inserted, skipped
		),
		ingestDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_ingest_duration_seconds",
				Help:    "Duration of ingestion runs",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
	}
}

// RecordSearch 记录一次检索请求
func (c *Collector) RecordSearch(outcome string, duration time.Duration, gathered int, skipped int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.searchCounter.WithLabelValues(outcome, status).Inc()
	if err == nil {
		c.searchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
		c.candidatesGathered.Observe(float64(gathered))
	}
	if skipped > 0 {
		c.tablesSkipped.Add(float64(skipped))
	}
}

// RecordEmbedBatch 记录一个向量化批次
func (c *Collector) RecordEmbedBatch(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.embedBatchCounter.WithLabelValues(status).Inc()
	if err == nil {
		c.embedDuration.Observe(duration.Seconds())
	}
}

// RecordGeneration 记录一次答案生成
func (c *Collector) RecordGeneration(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.generateCounter.WithLabelValues(status).Inc()
}

// RecordIngest 记录一次摄取运行
func (c *Collector) RecordIngest(duration time.Duration, inserted, skipped int) {
	c.ingestChunks.WithLabelValues("inserted").Add(float64(inserted))
	c.ingestChunks.WithLabelValues("skipped").Add(float64(skipped))
	c.ingestDuration.Observe(duration.Seconds())
}

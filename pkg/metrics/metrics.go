// Package metrics 注册服务的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsIngested 按结果统计处理完成的文档数。
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_documents_ingested_total",
			Help: "Number of documents processed by the ingestion worker",
		},
		[]string{"status"}, // completed, failed
	)

	// OCRFallbacks 统计文本抽取回退到 OCR 的次数。
	OCRFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_ocr_fallbacks_total",
			Help: "Number of times extraction switched to the OCR strategy",
		},
		[]string{"reason"}, // image, low_content, fast_path_error
	)

	// GenerationFallbacks 统计语言模型失败后使用兜底答案的次数。
	GenerationFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_generation_fallbacks_total",
			Help: "Number of degraded answers returned after a generation failure",
		},
		[]string{"stage"}, // answer, synthesis
	)

	// OperationDuration 记录问答与主题综合的耗时。
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_operation_duration_seconds",
			Help:    "Duration of query-time operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // answer, synthesize, ingest
	)

	// HTTPRequestDuration 记录 HTTP 请求耗时。
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

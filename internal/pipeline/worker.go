package pipeline

import (
	"context"
	"errors"
	"fmt"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/repository"
	"pai-docqa-go/pkg/log"
	"pai-docqa-go/pkg/metrics"
	"pai-docqa-go/pkg/tasks"
	"time"
)

// Worker 是摄取队列的唯一消费者，负责推进文档状态。
type Worker struct {
	queue     tasks.Queue
	processor *Processor
	docs      repository.DocumentRepository
}

// NewWorker 创建 Worker。
func NewWorker(queue tasks.Queue, processor *Processor, docs repository.DocumentRepository) *Worker {
	return &Worker{queue: queue, processor: processor, docs: docs}
}

// Run 按提交顺序逐个处理任务，直到队列关闭或 ctx 取消。
func (w *Worker) Run(ctx context.Context) error {
	log.Info("[Worker] 摄取 worker 启动")
	err := w.queue.Consume(ctx, w.Handle)
	log.Info("[Worker] 摄取 worker 退出")
	return err
}

// Handle 处理单个任务。分块持久化成功后才会标记为 completed；
// 抽取失败只记录在文档状态中，不会向上传播为 worker 错误。
func (w *Worker) Handle(ctx context.Context, task tasks.IngestTask) error {
	start := time.Now()
	if err := w.docs.Transition(ctx, task.DocID, model.StatusQueued, model.StatusProcessing, model.StatusUpdate{}); err != nil {
		log.Warnf("[Worker] 跳过任务 %s: %v", task.DocID, err)
		return fmt.Errorf("开始处理 %s: %w", task.DocID, err)
	}

	result, procErr := w.processor.Process(ctx, task)
	now := time.Now()
	metrics.OperationDuration.WithLabelValues("ingest").Observe(time.Since(start).Seconds())

	if procErr != nil {
		metrics.DocumentsIngested.WithLabelValues(string(model.StatusFailed)).Inc()
		upd := model.StatusUpdate{ErrorMessage: procErr.Error(), ProcessedAt: &now}
		if err := w.docs.Transition(ctx, task.DocID, model.StatusProcessing, model.StatusFailed, upd); err != nil {
			log.Errorf("[Worker] 标记文档 %s 失败状态时出错: %v", task.DocID, err)
			return errors.Join(procErr, err)
		}
		log.Warnw("[Worker] 文档处理失败", "doc_id", task.DocID, "error", procErr)
		return nil
	}

	upd := model.StatusUpdate{ChunksCount: result.ChunksCount, OCRUsed: result.OCRUsed, ProcessedAt: &now}
	if err := w.docs.Transition(ctx, task.DocID, model.StatusProcessing, model.StatusCompleted, upd); err != nil {
		log.Errorf("[Worker] 标记文档 %s 完成状态时出错: %v", task.DocID, err)
		return err
	}
	metrics.DocumentsIngested.WithLabelValues(string(model.StatusCompleted)).Inc()
	log.Infow("[Worker] 文档处理完成", "doc_id", task.DocID, "chunks", result.ChunksCount, "ocr_used", result.OCRUsed)
	return nil
}

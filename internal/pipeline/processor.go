// Package pipeline 定义了文件处理的核心流程。
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/repository"
	"pai-docqa-go/pkg/log"
	"pai-docqa-go/pkg/storage"
	"pai-docqa-go/pkg/tasks"
	"time"
)

// Processor 封装了文件处理的所有依赖和逻辑：读取原始文件、抽取分块、持久化。
type Processor struct {
	objects    storage.ObjectStore
	extractor  *Extractor
	chunkStore *repository.ChunkStore
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(objects storage.ObjectStore, extractor *Extractor, chunkStore *repository.ChunkStore) *Processor {
	return &Processor{
		objects:    objects,
		extractor:  extractor,
		chunkStore: chunkStore,
	}
}

// Process 处理队列中的一个任务，原始文件从对象存储读取。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) (*model.IngestResult, error) {
	log.Infof("[Processor] 开始处理文件, DocID: %s, FileName: %s", task.DocID, task.FileName)

	log.Infof("[Processor] 步骤1: 从对象存储读取文件, Object: %s", task.ObjectKey)
	data, err := p.objects.GetObject(ctx, task.ObjectKey)
	if err != nil {
		log.Errorf("[Processor] 读取文件失败, Object: %s, Error: %v", task.ObjectKey, err)
		return nil, fmt.Errorf("读取原始文件失败: %w: %w", model.ErrExtraction, err)
	}
	fileType := task.FileType
	if fileType == "" {
		fileType = model.FileTypeOf(task.FileName)
	}
	return p.process(ctx, task.DocID, task.FileName, fileType, data)
}

// Ingest 直接处理本地文件，文件类型取自扩展名。
func (p *Processor) Ingest(ctx context.Context, path, docID string) (*model.IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文件 %s 失败: %w: %w", path, model.ErrExtraction, err)
	}
	name := filepath.Base(path)
	return p.process(ctx, docID, name, model.FileTypeOf(name), data)
}

func (p *Processor) process(ctx context.Context, docID, fileName, fileType string, data []byte) (*model.IngestResult, error) {
	log.Infof("[Processor] 步骤2: 抽取文本并切块, 文件大小: %d 字节, 类型: %s", len(data), fileType)
	extraction, err := p.extractor.Extract(ctx, data, fileName, fileType)
	if err != nil {
		log.Errorf("[Processor] 文本抽取失败, DocID: %s, Error: %v", docID, err)
		return nil, err
	}
	for i := range extraction.Chunks {
		extraction.Chunks[i].DocID = docID
	}
	log.Infof("[Processor] 步骤2: 切块完成, 共 %d 个分块, OCR: %v", len(extraction.Chunks), extraction.OCRUsed)

	log.Info("[Processor] 步骤3: 持久化分块")
	meta := model.DocumentMetadata{
		DocID:          docID,
		OriginalFile:   fileName,
		FileType:       fileType,
		ProcessingTime: time.Now(),
		ChunksCount:    len(extraction.Chunks),
		OCRUsed:        extraction.OCRUsed,
	}
	if err := p.chunkStore.Save(ctx, meta, extraction.Chunks); err != nil {
		log.Errorf("[Processor] 持久化分块失败, DocID: %s, Error: %v", docID, err)
		return nil, fmt.Errorf("持久化分块失败: %w", err)
	}

	log.Infof("[Processor] 文件处理成功完成, DocID: %s", docID)
	return &model.IngestResult{
		Status:      model.StatusCompleted,
		ChunksCount: len(extraction.Chunks),
		FileType:    fileType,
		OCRUsed:     extraction.OCRUsed,
	}, nil
}

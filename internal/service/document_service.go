package service

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/repository"
	"pai-docqa-go/pkg/log"
	"pai-docqa-go/pkg/storage"
	"pai-docqa-go/pkg/tasks"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentContentDTO 封装了文档元数据与带分隔标记的全文。
type DocumentContentDTO struct {
	Document model.DocumentView      `json:"document"`
	Metadata *model.DocumentMetadata `json:"metadata"`
	Content  string                  `json:"content"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, fileName string, data []byte) (*model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
	Get(ctx context.Context, docID string) (*model.Document, error)
	GetContent(ctx context.Context, docID string) (*DocumentContentDTO, error)
}

type documentService struct {
	docs       repository.DocumentRepository
	chunkStore *repository.ChunkStore
	objects    storage.ObjectStore
	queue      tasks.Queue
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docs repository.DocumentRepository, chunkStore *repository.ChunkStore, objects storage.ObjectStore, queue tasks.Queue) DocumentService {
	return &documentService{docs: docs, chunkStore: chunkStore, objects: objects, queue: queue}
}

// UploadObjectKey 返回原始上传文件在对象存储中的位置。
func UploadObjectKey(docID, fileName string) string {
	return "uploads/" + docID + "_" + fileName
}

// Upload 保存原始文件、记录 queued 状态并入队。
func (s *documentService) Upload(ctx context.Context, fileName string, data []byte) (*model.Document, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	fileType := model.FileTypeOf(fileName)
	if !model.IsAllowedFileType(fileType) {
		return nil, fmt.Errorf("%q: %w", fileName, model.ErrUnsupportedFileType)
	}

	docID := uuid.NewString()
	objectKey := UploadObjectKey(docID, fileName)
	log.Infof("[DocumentService] 保存上传文件, DocID: %s, Object: %s", docID, objectKey)
	if err := s.objects.PutObject(ctx, objectKey, data, mime.TypeByExtension("."+fileType)); err != nil {
		return nil, fmt.Errorf("保存上传文件失败: %w", err)
	}

	doc := &model.Document{
		DocID:        docID,
		OriginalFile: fileName,
		FileType:     fileType,
		ObjectKey:    objectKey,
		Status:       model.StatusQueued,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		_ = s.objects.RemoveObject(context.WithoutCancel(ctx), objectKey)
		return nil, fmt.Errorf("记录文档失败: %w", err)
	}

	task := tasks.IngestTask{DocID: docID, ObjectKey: objectKey, FileName: fileName, FileType: fileType}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		log.Errorf("[DocumentService] 入队失败, DocID: %s, Error: %v", docID, err)
		s.markEnqueueFailed(context.WithoutCancel(ctx), docID, err)
		return nil, fmt.Errorf("任务入队失败: %w", err)
	}
	return doc, nil
}

// markEnqueueFailed 让未能入队的文档进入 failed 终态。
func (s *documentService) markEnqueueFailed(ctx context.Context, docID string, cause error) {
	if err := s.docs.Transition(ctx, docID, model.StatusQueued, model.StatusProcessing, model.StatusUpdate{}); err != nil {
		log.Warnf("[DocumentService] 更新文档 %s 状态失败: %v", docID, err)
		return
	}
	now := time.Now()
	upd := model.StatusUpdate{ErrorMessage: "enqueue failed: " + cause.Error(), ProcessedAt: &now}
	if err := s.docs.Transition(ctx, docID, model.StatusProcessing, model.StatusFailed, upd); err != nil {
		log.Warnf("[DocumentService] 更新文档 %s 状态失败: %v", docID, err)
	}
}

func (s *documentService) List(ctx context.Context) ([]model.Document, error) {
	return s.docs.FindAll(ctx)
}

func (s *documentService) Get(ctx context.Context, docID string) (*model.Document, error) {
	return s.docs.FindByDocID(ctx, docID)
}

// GetContent 只对已持久化分块的文档返回全文。
func (s *documentService) GetContent(ctx context.Context, docID string) (*DocumentContentDTO, error) {
	doc, err := s.docs.FindByDocID(ctx, docID)
	if err != nil {
		return nil, err
	}
	meta, err := s.chunkStore.LoadMetadata(ctx, docID)
	if err != nil {
		return nil, err
	}
	content, err := s.chunkStore.LoadContent(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &DocumentContentDTO{Document: model.NewDocumentView(doc), Metadata: meta, Content: content}, nil
}

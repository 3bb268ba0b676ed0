// Package repository 定义了与数据库、对象存储进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"pai-docqa-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 接口定义了文档状态存储的操作。
// 状态迁移以 "WHERE doc_id = ? AND status = ?" 的条件更新完成，保证单键原子且单调。
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByDocID(ctx context.Context, docID string) (*model.Document, error)
	FindByDocIDs(ctx context.Context, docIDs []string) ([]model.Document, error)
	FindAll(ctx context.Context) ([]model.Document, error)
	Transition(ctx context.Context, docID string, from, to model.DocumentStatus, upd model.StatusUpdate) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 GORM DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条文档记录。
func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// FindByDocID 根据文档 id 查询记录。
func (r *documentRepository) FindByDocID(ctx context.Context, docID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("doc_id = ?", docID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("文档 %s: %w", docID, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByDocIDs 批量查询文档记录。
func (r *documentRepository) FindByDocIDs(ctx context.Context, docIDs []string) ([]model.Document, error) {
	var docs []model.Document
	if len(docIDs) == 0 {
		return docs, nil
	}
	err := r.db.WithContext(ctx).Where("doc_id IN ?", docIDs).Order("id asc").Find(&docs).Error
	return docs, err
}

// FindAll 按提交顺序返回所有文档。
func (r *documentRepository) FindAll(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Order("id asc").Find(&docs).Error
	return docs, err
}

// Transition 条件更新文档状态。
func (r *documentRepository) Transition(ctx context.Context, docID string, from, to model.DocumentStatus, upd model.StatusUpdate) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, model.ErrInvalidTransition)
	}
	fields := map[string]interface{}{"status": to}
	if to.IsTerminal() {
		fields["error_message"] = upd.ErrorMessage
		fields["chunks_count"] = upd.ChunksCount
		fields["ocr_used"] = upd.OCRUsed
		fields["processed_at"] = upd.ProcessedAt
	}
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("doc_id = ? AND status = ?", docID, from).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("文档 %s 当前不处于 %s 状态: %w", docID, from, model.ErrInvalidTransition)
	}
	return nil
}

// Package model 定义了核心领域结构体与数据库模型。
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus 表示文档的生命周期状态。
type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// 状态只允许单调前进：queued -> processing -> completed | failed。
var statusTransitions = map[DocumentStatus][]DocumentStatus{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition 判断状态迁移是否合法。
func CanTransition(from, to DocumentStatus) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 表示状态不会再变化。
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document 定义了 documents 表的 ORM 模型，记录每个上传文档的元数据和处理状态。
type Document struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"-"`
	DocID        string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"docId"`
	OriginalFile string         `gorm:"type:varchar(255);not null" json:"originalFile"`
	FileType     string         `gorm:"type:varchar(16);not null" json:"fileType"`
	ObjectKey    string         `gorm:"type:varchar(512);not null" json:"-"`
	Status       DocumentStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	OCRUsed      bool           `gorm:"not null;default:false" json:"ocrUsed"`
	ChunksCount  int            `gorm:"not null;default:0" json:"chunksCount"`
	ErrorMessage string         `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	ProcessedAt  *time.Time     `gorm:"default:null" json:"processedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// StatusUpdate 描述一次状态迁移时需要同时写入的字段。
type StatusUpdate struct {
	ErrorMessage string
	ChunksCount  int
	OCRUsed      bool
	ProcessedAt  *time.Time
}

// 支持的文件类型。
var (
	textNativeTypes = map[string]bool{"pdf": true, "docx": true, "txt": true, "md": true}
	imageTypes      = map[string]bool{"jpg": true, "jpeg": true, "png": true, "tiff": true, "tif": true}
)

// FileTypeOf 返回文件名的小写扩展名（不含点）。
func FileTypeOf(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}

// IsAllowedFileType 判断文件类型是否可以被摄取。
func IsAllowedFileType(fileType string) bool {
	return textNativeTypes[fileType] || imageTypes[fileType]
}

// IsImageType 判断文件类型是否只能走 OCR。
func IsImageType(fileType string) bool {
	return imageTypes[fileType]
}

// SupportedFileTypes 返回所有支持的扩展名。
func SupportedFileTypes() []string {
	return []string{"pdf", "docx", "txt", "md", "jpg", "jpeg", "png", "tiff", "tif"}
}

// IngestResult 是一次摄取的结果摘要。
type IngestResult struct {
	Status      DocumentStatus `json:"status"`
	ChunksCount int            `json:"chunks_count"`
	FileType    string         `json:"file_type"`
	OCRUsed     bool           `json:"ocr_used"`
}

// DocumentMetadata 是与分块一起持久化的元数据摘要。
type DocumentMetadata struct {
	DocID          string    `json:"doc_id"`
	OriginalFile   string    `json:"original_file"`
	FileType       string    `json:"file_type"`
	ProcessingTime time.Time `json:"processing_time"`
	ChunksCount    int       `json:"chunks_count"`
	OCRUsed        bool      `json:"ocr_used"`
}

package model

import (
	"fmt"
	"time"
)

// LocalTime is a custom time type to format time as "YYYY-MM-DD HH:MM:SS".
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}

// DocumentView 是返回给 API 调用方的文档信息。
type DocumentView struct {
	DocID        string         `json:"docId"`
	OriginalFile string         `json:"originalFile"`
	FileType     string         `json:"fileType"`
	Status       DocumentStatus `json:"status"`
	OCRUsed      bool           `json:"ocrUsed"`
	ChunksCount  int            `json:"chunksCount"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	CreatedAt    LocalTime      `json:"createdAt"`
	ProcessedAt  LocalTime      `json:"processedAt"`
}

// NewDocumentView 将 Document 转换为对外视图。
func NewDocumentView(d *Document) DocumentView {
	v := DocumentView{
		DocID:        d.DocID,
		OriginalFile: d.OriginalFile,
		FileType:     d.FileType,
		Status:       d.Status,
		OCRUsed:      d.OCRUsed,
		ChunksCount:  d.ChunksCount,
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    LocalTime(d.CreatedAt),
	}
	if d.ProcessedAt != nil {
		v.ProcessedAt = LocalTime(*d.ProcessedAt)
	}
	return v
}

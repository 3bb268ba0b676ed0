package model

import (
	"fmt"
	"strconv"
)

// UnknownLocation 是页码未知时的位置标签。
const UnknownLocation = "Unknown"

// Chunk 是文档中一段带位置信息的文本。
type Chunk struct {
	DocID  string `json:"doc_id"`
	Seq    int    `json:"seq"` // 从 1 开始，连续
	Text   string `json:"text"`
	Page   string `json:"page"`
	Source string `json:"source"`
}

// Citation 返回 "Page P, Chunk N" 形式的引用，只依赖 Seq 与 Page。
func (c Chunk) Citation() string {
	return FormatCitation(c.Page, c.Seq)
}

// FormatCitation 根据位置标签与序号构造引用字符串。
func FormatCitation(page string, seq int) string {
	if page == "" {
		page = UnknownLocation
	}
	return fmt.Sprintf("Page %s, Chunk %d", page, seq)
}

// PageLabel 将页码转换为位置标签，非正数视为未知。
func PageLabel(page int) string {
	if page <= 0 {
		return UnknownLocation
	}
	return strconv.Itoa(page)
}

// ScoredChunk 是一次检索命中。
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// PageText 是抽取服务返回的一页文本。Number 为 0 表示页码未知。
type PageText struct {
	Number int
	Text   string
}

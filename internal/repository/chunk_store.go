package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/pkg/log"
	"pai-docqa-go/pkg/storage"
	"regexp"
	"strings"
)

const processedPrefix = "processed/"

var (
	// 分块在全文中的分隔标记。
	chunkMarker = regexp.MustCompile(`\n---\s*Document Chunk \d+\s*---\n`)
	// 正文中形如分隔标记的行写入时加一个反斜杠前缀，读取时去掉。
	markerLine        = regexp.MustCompile(`(?m)^\\*---\s*Document Chunk \d+\s*---$`)
	escapedMarkerLine = regexp.MustCompile(`(?m)^\\(\\*---\s*Document Chunk \d+\s*---)$`)
)

// chunkRecord 是分块侧车 JSON 中的一条记录。
type chunkRecord struct {
	ChunkID  int    `json:"chunk_id"`
	Page     string `json:"page"`
	Source   string `json:"source"`
	DocID    string `json:"doc_id"`
	Citation string `json:"citation"`
}

// ChunkStore 以三个产物持久化每个文档的分块：带分隔标记的全文、分块侧车 JSON 与元数据摘要。
type ChunkStore struct {
	objects storage.ObjectStore
}

// NewChunkStore 创建一个新的 ChunkStore。
func NewChunkStore(objects storage.ObjectStore) *ChunkStore {
	return &ChunkStore{objects: objects}
}

func contentKey(docID string) string  { return processedPrefix + docID + "_content.txt" }
func chunksKey(docID string) string   { return processedPrefix + docID + "_chunks.json" }
func metadataKey(docID string) string { return processedPrefix + docID + "_metadata.json" }

// RenderContent 生成带分隔标记的全文，正文里的标记行会被转义。
func RenderContent(chunks []model.Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&sb, "\n--- Document Chunk %d ---\n", c.Seq)
		sb.WriteString(markerLine.ReplaceAllStringFunc(c.Text, func(m string) string { return `\` + m }))
		sb.WriteString("\n")
	}
	return sb.String()
}

// Save 写入三个产物。元数据最后写入，作为提交标记；任一步失败都会清理已写入的产物。
func (s *ChunkStore) Save(ctx context.Context, meta model.DocumentMetadata, chunks []model.Chunk) (err error) {
	if len(chunks) == 0 {
		return fmt.Errorf("文档 %s 没有可保存的分块: %w", meta.DocID, model.ErrEmptyInput)
	}
	records := make([]chunkRecord, 0, len(chunks))
	for i, c := range chunks {
		if c.Seq != i+1 {
			return fmt.Errorf("分块序号不连续: 位置 %d 的序号为 %d", i+1, c.Seq)
		}
		records = append(records, chunkRecord{
			ChunkID:  c.Seq,
			Page:     c.Page,
			Source:   c.Source,
			DocID:    meta.DocID,
			Citation: c.Citation(),
		})
	}
	meta.ChunksCount = len(chunks)

	sidecar, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化分块元数据失败: %w", err)
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化文档元数据失败: %w", err)
	}

	docID := meta.DocID
	var written []string
	defer func() {
		if err == nil {
			return
		}
		for _, key := range written {
			if rmErr := s.objects.RemoveObject(context.WithoutCancel(ctx), key); rmErr != nil {
				log.Warnf("[ChunkStore] 回滚产物 %s 失败: %v", key, rmErr)
			}
		}
	}()

	// 先撤掉旧的提交标记，避免读到新旧混合的产物
	if err = s.objects.RemoveObject(ctx, metadataKey(docID)); err != nil {
		return fmt.Errorf("清理旧元数据失败: %w", err)
	}

	steps := []struct {
		key         string
		data        []byte
		contentType string
	}{
		{contentKey(docID), []byte(RenderContent(chunks)), "text/plain; charset=utf-8"},
		{chunksKey(docID), sidecar, "application/json"},
		{metadataKey(docID), metaBytes, "application/json"},
	}
	for _, step := range steps {
		if err = s.objects.PutObject(ctx, step.key, step.data, step.contentType); err != nil {
			return fmt.Errorf("写入 %s 失败: %w", step.key, err)
		}
		written = append(written, step.key)
	}
	log.Infof("[ChunkStore] 文档 %s 已持久化 %d 个分块", docID, len(chunks))
	return nil
}

// LoadMetadata 读取元数据摘要；不存在时返回 ErrNotFound。
func (s *ChunkStore) LoadMetadata(ctx context.Context, docID string) (*model.DocumentMetadata, error) {
	data, err := s.objects.GetObject(ctx, metadataKey(docID))
	if err != nil {
		return nil, s.notFound(docID, err)
	}
	var meta model.DocumentMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("解析文档 %s 元数据失败: %w", docID, err)
	}
	return &meta, nil
}

// LoadContent 读取带分隔标记的全文。
func (s *ChunkStore) LoadContent(ctx context.Context, docID string) (string, error) {
	if _, err := s.LoadMetadata(ctx, docID); err != nil {
		return "", err
	}
	data, err := s.objects.GetObject(ctx, contentKey(docID))
	if err != nil {
		return "", s.notFound(docID, err)
	}
	return string(data), nil
}

// Load 从全文中按分隔标记还原分块，再按 chunk_id 挂接侧车中的引用信息。
func (s *ChunkStore) Load(ctx context.Context, docID string) ([]model.Chunk, error) {
	meta, err := s.LoadMetadata(ctx, docID)
	if err != nil {
		return nil, err
	}
	data, err := s.objects.GetObject(ctx, contentKey(docID))
	if err != nil {
		return nil, s.notFound(docID, err)
	}

	records := map[int]chunkRecord{}
	sidecar, err := s.objects.GetObject(ctx, chunksKey(docID))
	switch {
	case err == nil:
		var list []chunkRecord
		if jsonErr := json.Unmarshal(sidecar, &list); jsonErr != nil {
			log.Warnf("[ChunkStore] 文档 %s 的分块元数据无法解析，使用默认值: %v", docID, jsonErr)
		}
		for i, r := range list {
			if r.ChunkID <= 0 {
				r.ChunkID = i + 1
			}
			records[r.ChunkID] = r
		}
	case errors.Is(err, storage.ErrObjectNotFound):
		log.Warnf("[ChunkStore] 文档 %s 缺少分块元数据，使用默认值", docID)
	default:
		return nil, fmt.Errorf("读取文档 %s 分块元数据失败: %w", docID, err)
	}

	chunks := ParseContent(string(data))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("文档 %s 没有分块: %w", docID, model.ErrNotFound)
	}
	for i := range chunks {
		chunks[i].DocID = docID
		chunks[i].Page = model.UnknownLocation
		chunks[i].Source = meta.OriginalFile
		if r, ok := records[chunks[i].Seq]; ok {
			if r.Page != "" {
				chunks[i].Page = r.Page
			}
			if r.Source != "" {
				chunks[i].Source = r.Source
			}
		}
	}
	return chunks, nil
}

// ParseContent 按分隔标记切分全文，丢弃空白片段，序号从 1 开始连续编号。
func ParseContent(content string) []model.Chunk {
	parts := chunkMarker.Split(content, -1)
	chunks := make([]model.Chunk, 0, len(parts))
	for _, p := range parts {
		text := strings.TrimSpace(p)
		if text == "" {
			continue
		}
		text = escapedMarkerLine.ReplaceAllString(text, "$1")
		chunks = append(chunks, model.Chunk{Seq: len(chunks) + 1, Text: text})
	}
	return chunks
}

func (s *ChunkStore) notFound(docID string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("文档 %s: %w", docID, model.ErrNotFound)
	}
	return fmt.Errorf("读取文档 %s 失败: %w", docID, err)
}

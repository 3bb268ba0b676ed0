// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/repository"
	"pai-docqa-go/internal/vectorindex"
	"pai-docqa-go/pkg/llm"
	"pai-docqa-go/pkg/log"
	"pai-docqa-go/pkg/metrics"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

const (
	// DefaultTopK 是单文档问答检索的分块数。
	DefaultTopK = 3

	answerConfidence   = 0.95
	fallbackConfidence = 0.7
	fallbackExcerptLen = 500
	maxCachedIndexes   = 64

	noRelevantInfoAnswer = "No relevant information found in this document."
	noCitation           = "N/A"
)

const answerSystemPrompt = `You are a helpful assistant that provides accurate information based on the provided document sections.
Answer the user's query based ONLY on the information in the document sections provided.
If the information to answer the query is not in the sections, say "I cannot find information about this in the document."
Do not make up or infer information that is not explicitly stated in the document sections.
Keep your answer concise and to the point.`

// QueryService 定义了单文档问答的接口。
type QueryService interface {
	Answer(ctx context.Context, query, docID string) (*model.AnswerResult, error)
	// StreamAnswer 与 Answer 相同，但把生成的文本逐段写入 writer。
	StreamAnswer(ctx context.Context, query, docID string, writer llm.MessageWriter) (*model.AnswerResult, error)
}

type queryService struct {
	chunkStore *repository.ChunkStore
	builder    *vectorindex.Builder
	llmClient  llm.Client
	topK       int
	cache      *indexCache
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(chunkStore *repository.ChunkStore, builder *vectorindex.Builder, llmClient llm.Client, topK int) QueryService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &queryService{
		chunkStore: chunkStore,
		builder:    builder,
		llmClient:  llmClient,
		topK:       topK,
		cache:      newIndexCache(maxCachedIndexes),
	}
}

// retrieval 是一次检索的中间结果。
type retrieval struct {
	meta *model.DocumentMetadata
	hits []model.ScoredChunk
}

func (s *queryService) retrieve(ctx context.Context, query, docID string) (*retrieval, error) {
	meta, err := s.chunkStore.LoadMetadata(ctx, docID)
	if err != nil {
		return nil, err
	}
	idx, release, err := s.cache.acquire(ctx, meta.DocID, meta.ProcessingTime, func(ctx context.Context) (*vectorindex.Index, error) {
		return s.buildIndex(ctx, meta.DocID)
	})
	if err != nil {
		return nil, err
	}
	defer release()
	log.Infof("[QueryService] 步骤1: 检索文档 %s, topK: %d", docID, s.topK)
	hits, err := idx.Search(ctx, query, s.topK)
	if err != nil {
		return nil, fmt.Errorf("检索文档 %s 失败: %w", docID, err)
	}
	return &retrieval{meta: meta, hits: hits}, nil
}

func (s *queryService) buildIndex(ctx context.Context, docID string) (*vectorindex.Index, error) {
	chunks, err := s.chunkStore.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	idx, err := s.builder.Build(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("为文档 %s 建立索引失败: %w", docID, err)
	}
	return idx, nil
}

func (s *queryService) Answer(ctx context.Context, query, docID string) (*model.AnswerResult, error) {
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("answer").Observe(time.Since(start).Seconds())
	}()

	r, err := s.retrieve(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	if len(r.hits) == 0 {
		return noRelevantInfo(r.meta), nil
	}

	log.Infof("[QueryService] 步骤2: 调用 LLM 生成答案, 命中分块: %d", len(r.hits))
	answer, err := s.llmClient.Generate(ctx, buildAnswerMessages(query, r.hits), nil)
	if err != nil {
		if !model.IsTransient(err) && ctx.Err() != nil {
			// 调用方已取消，不再兜底
			return nil, ctx.Err()
		}
		log.Warnf("[QueryService] 生成答案失败, 使用检索摘录兜底: %v", err)
		return fallbackAnswer(r.meta, r.hits), nil
	}
	return &model.AnswerResult{
		DocID:      r.meta.DocID,
		Filename:   r.meta.OriginalFile,
		Answer:     answer,
		Citation:   joinCitations(r.hits),
		Confidence: answerConfidence,
	}, nil
}

func (s *queryService) StreamAnswer(ctx context.Context, query, docID string, writer llm.MessageWriter) (*model.AnswerResult, error) {
	r, err := s.retrieve(ctx, query, docID)
	if err != nil {
		return nil, err
	}
	if len(r.hits) == 0 {
		res := noRelevantInfo(r.meta)
		return res, writeText(writer, res.Answer)
	}

	tee := &teeWriter{next: writer}
	err = s.llmClient.StreamChatMessages(ctx, buildAnswerMessages(query, r.hits), nil, tee)
	if err == nil && strings.TrimSpace(tee.sb.String()) != "" {
		return &model.AnswerResult{
			DocID:      r.meta.DocID,
			Filename:   r.meta.OriginalFile,
			Answer:     tee.sb.String(),
			Citation:   joinCitations(r.hits),
			Confidence: answerConfidence,
		}, nil
	}
	if tee.writeErr != nil {
		return nil, tee.writeErr
	}
	log.Warnf("[QueryService] 流式生成失败, 使用检索摘录兜底: %v", err)
	res := fallbackAnswer(r.meta, r.hits)
	if tee.sb.Len() == 0 {
		return res, writeText(writer, res.Answer)
	}
	return res, nil
}

func noRelevantInfo(meta *model.DocumentMetadata) *model.AnswerResult {
	return &model.AnswerResult{
		DocID:      meta.DocID,
		Filename:   meta.OriginalFile,
		Answer:     noRelevantInfoAnswer,
		Citation:   noCitation,
		Confidence: 0,
	}
}

func fallbackAnswer(meta *model.DocumentMetadata, hits []model.ScoredChunk) *model.AnswerResult {
	metrics.GenerationFallbacks.WithLabelValues("answer").Inc()
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}
	return &model.AnswerResult{
		DocID:      meta.DocID,
		Filename:   meta.OriginalFile,
		Answer:     "Found relevant information: " + truncateRunes(strings.Join(texts, "\n"), fallbackExcerptLen) + "...",
		Citation:   joinCitations(hits),
		Confidence: fallbackConfidence,
	}
}

// buildAnswerMessages 每个分块前附上其引用。
func buildAnswerMessages(query string, hits []model.ScoredChunk) []llm.Message {
	sections := make([]string, len(hits))
	for i, h := range hits {
		sections[i] = fmt.Sprintf("Document section (from %s):\n%s", h.Chunk.Citation(), h.Chunk.Text)
	}
	return []llm.Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("User Query: %s\n\nRelevant document sections:\n%s", query, strings.Join(sections, "\n\n"))},
	}
}

// joinCitations 按出现顺序去重后以 "; " 连接。
func joinCitations(hits []model.ScoredChunk) string {
	seen := make(map[string]bool, len(hits))
	var out []string
	for _, h := range hits {
		c := h.Chunk.Citation()
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return strings.Join(out, "; ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// teeWriter 转发分块并记录完整文本。
type teeWriter struct {
	next     llm.MessageWriter
	sb       strings.Builder
	writeErr error
}

func (t *teeWriter) WriteMessage(messageType int, data []byte) error {
	if err := t.next.WriteMessage(messageType, data); err != nil {
		t.writeErr = err
		return err
	}
	t.sb.Write(data)
	return nil
}

func writeText(w llm.MessageWriter, text string) error {
	return w.WriteMessage(websocket.TextMessage, []byte(text))
}

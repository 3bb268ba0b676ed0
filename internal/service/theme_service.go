package service

import (
	"context"
	"errors"
	"fmt"
	"pai-docqa-go/internal/config"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/repository"
	"pai-docqa-go/internal/vectorindex"
	"pai-docqa-go/pkg/llm"
	"pai-docqa-go/pkg/log"
	"pai-docqa-go/pkg/metrics"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// SingleDocumentThemeName 是只有一个文档时唯一主题的名称。
	SingleDocumentThemeName = "Single Document Analysis"

	noDocumentsAnswer  = "No documents were processed for this query."
	noSharedIndexError = "Error: Could not create vector database for theme identification."

	themeNameMaxLen = 50
)

// ThemeService 定义了跨文档主题综合的接口。
type ThemeService interface {
	Synthesize(ctx context.Context, query string, results []model.AnswerResult) (*model.ThemeResult, error)
}

type themeService struct {
	chunkStore *repository.ChunkStore
	builder    *vectorindex.Builder
	llmClient  llm.Client
	cfg        config.ThemeConfig
}

// NewThemeService 创建一个新的 ThemeService 实例。
func NewThemeService(chunkStore *repository.ChunkStore, builder *vectorindex.Builder, llmClient llm.Client, cfg config.ThemeConfig) ThemeService {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.ExpandK <= 0 {
		cfg.ExpandK = 10
	}
	return &themeService{chunkStore: chunkStore, builder: builder, llmClient: llmClient, cfg: cfg}
}

// Synthesize 依次处理零文档、单文档与多文档三种情况。
func (s *themeService) Synthesize(ctx context.Context, query string, results []model.AnswerResult) (*model.ThemeResult, error) {
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues("synthesize").Observe(time.Since(start).Seconds())
	}()

	switch len(results) {
	case 0:
		return &model.ThemeResult{Themes: []model.Theme{}, SynthesizedAnswer: noDocumentsAnswer}, nil
	case 1:
		r := results[0]
		return &model.ThemeResult{
			Themes: []model.Theme{{
				Name:        SingleDocumentThemeName,
				Description: r.Answer,
				DocIDs:      []string{r.DocID},
				Citations:   []string{r.Citation},
			}},
			SynthesizedAnswer: r.Answer,
		}, nil
	}

	log.Infof("[ThemeService] 步骤1: 为 %d 个文档建立共享索引", len(results))
	chunks, err := s.unionChunks(ctx, results)
	if err != nil {
		return s.degrade(ctx, query, results, err)
	}
	if len(chunks) == 0 {
		return &model.ThemeResult{Themes: []model.Theme{}, SynthesizedAnswer: noSharedIndexError}, nil
	}
	themes, err := s.identify(ctx, query, chunks)
	if err != nil {
		return s.degrade(ctx, query, results, err)
	}

	log.Info("[ThemeService] 步骤4: 调用 LLM 综合答案")
	answer, err := s.llmClient.Generate(ctx, []llm.Message{{Role: "user", Content: buildSynthesisPrompt(query, themes)}}, nil)
	if err != nil {
		log.Warnf("[ThemeService] 综合答案生成失败, 使用模板兜底: %v", err)
		metrics.GenerationFallbacks.WithLabelValues("synthesis").Inc()
		answer = templateSynthesis(query, len(themes), len(results))
	}
	return &model.ThemeResult{Themes: themes, SynthesizedAnswer: answer}, nil
}

// identify 在共享索引上检索主题并为每个主题扩展支持文档。
func (s *themeService) identify(ctx context.Context, query string, chunks []model.Chunk) ([]model.Theme, error) {
	idx, err := s.builder.Build(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("建立共享索引失败: %w", err)
	}
	defer func() {
		if err := idx.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warnf("[ThemeService] 释放共享索引失败: %v", err)
		}
	}()

	log.Infof("[ThemeService] 步骤2: 检索前 %d 个主题", s.cfg.TopN)
	top, err := idx.Search(ctx, query, s.cfg.TopN)
	if err != nil {
		return nil, fmt.Errorf("检索主题失败: %w", err)
	}
	themes := make([]model.Theme, 0, len(top))
	for _, hit := range top {
		themes = append(themes, model.Theme{
			Name:        ThemeName(hit.Chunk.Text),
			Description: hit.Chunk.Text,
			DocIDs:      []string{hit.Chunk.DocID},
			Citations:   []string{hit.Chunk.Citation()},
		})
	}

	log.Info("[ThemeService] 步骤3: 为每个主题扩展支持文档")
	for i := range themes {
		if err := s.expand(ctx, idx, &themes[i]); err != nil {
			return nil, err
		}
	}
	return themes, nil
}

// degrade 在共享检索不可用时，把每个文档的答案作为单独的主题返回。
// 调用方已取消时仍返回错误。
func (s *themeService) degrade(ctx context.Context, query string, results []model.AnswerResult, cause error) (*model.ThemeResult, error) {
	if ctx.Err() != nil {
		return nil, cause
	}
	log.Warnf("[ThemeService] 主题识别失败, 按文档兜底: %v", cause)
	metrics.GenerationFallbacks.WithLabelValues("themes").Inc()
	themes := make([]model.Theme, 0, len(results))
	for _, r := range results {
		themes = append(themes, model.Theme{
			Name:        ThemeName(r.Answer),
			Description: r.Answer,
			DocIDs:      []string{r.DocID},
			Citations:   []string{r.Citation},
		})
	}
	return &model.ThemeResult{Themes: themes, SynthesizedAnswer: templateSynthesis(query, len(themes), len(results))}, nil
}

func templateSynthesis(query string, themes, docs int) string {
	return fmt.Sprintf("Analysis of %d themes found across %d documents for query: '%s'", themes, docs, query)
}

// unionChunks 合并所有文档的分块；缺失的文档被跳过。
func (s *themeService) unionChunks(ctx context.Context, results []model.AnswerResult) ([]model.Chunk, error) {
	seen := make(map[string]bool, len(results))
	var all []model.Chunk
	for _, r := range results {
		if seen[r.DocID] {
			continue
		}
		seen[r.DocID] = true
		chunks, err := s.chunkStore.Load(ctx, r.DocID)
		if errors.Is(err, model.ErrNotFound) {
			log.Warnf("[ThemeService] 文档 %s 没有分块, 跳过", r.DocID)
			continue
		}
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// expand 用主题描述再次检索，第一条命中是主题自身。
func (s *themeService) expand(ctx context.Context, idx *vectorindex.Index, theme *model.Theme) error {
	similar, err := idx.Search(ctx, theme.Description, s.cfg.ExpandK)
	if err != nil {
		return fmt.Errorf("扩展主题失败: %w", err)
	}
	if len(similar) <= 1 {
		return nil
	}
	for _, hit := range similar[1:] {
		if s.cfg.ExpandMinScore > 0 && float64(hit.Score) < s.cfg.ExpandMinScore {
			continue
		}
		theme.AddSupport(hit.Chunk.DocID, hit.Chunk.Citation())
	}
	return nil
}

// ThemeName 取第一句作为主题名，超过 50 个字符时截断并加省略号。
func ThemeName(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		sentence := text[:i+1]
		if utf8.RuneCountInString(sentence) > themeNameMaxLen {
			return truncateRunes(sentence, themeNameMaxLen-3) + "..."
		}
		return sentence
	}
	if utf8.RuneCountInString(text) > themeNameMaxLen {
		return truncateRunes(text, themeNameMaxLen) + "..."
	}
	return text
}

func buildSynthesisPrompt(query string, themes []model.Theme) string {
	var sb strings.Builder
	for i, t := range themes {
		fmt.Fprintf(&sb, "Theme %d: %s\n", i+1, t.Name)
		fmt.Fprintf(&sb, "Description: %s\n", t.Description)
		fmt.Fprintf(&sb, "Citations: %s\n\n", strings.Join(t.Citations, ", "))
	}
	return fmt.Sprintf(`User Query: %s

I have identified the following key themes from the documents:

%s
Please create a comprehensive, well-organized answer that:
1. Directly addresses the user's query
2. Synthesizes the information from these themes
3. Is clear, concise, and well-structured

Your synthesized answer:`, query, sb.String())
}

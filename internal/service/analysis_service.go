package service

import (
	"context"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/repository"
	"pai-docqa-go/pkg/log"

	"golang.org/x/sync/errgroup"
)

// AnalysisService 对多个文档并行问答，再做主题综合。
type AnalysisService interface {
	QueryDocuments(ctx context.Context, query string, docIDs []string) (*model.AnalysisResult, error)
}

type analysisService struct {
	docs     repository.DocumentRepository
	query    QueryService
	themes   ThemeService
	parallel int
}

// NewAnalysisService 创建一个新的 AnalysisService 实例。parallel 限制同时问答的文档数。
func NewAnalysisService(docs repository.DocumentRepository, query QueryService, themes ThemeService, parallel int) AnalysisService {
	if parallel <= 0 {
		parallel = 1
	}
	return &analysisService{docs: docs, query: query, themes: themes, parallel: parallel}
}

// QueryDocuments 只处理已完成的文档，结果顺序与 docIDs 一致；docIDs 为空时处理全部已完成文档。
func (s *analysisService) QueryDocuments(ctx context.Context, query string, docIDs []string) (*model.AnalysisResult, error) {
	targets, err := s.completedDocuments(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	log.Infof("[AnalysisService] 对 %d 个已完成文档执行查询: %s", len(targets), query)

	answers := make([]model.AnswerResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, doc := range targets {
		i, doc := i, doc
		g.Go(func() error {
			res, err := s.query.Answer(gctx, query, doc.DocID)
			if err != nil {
				// 单个文档失败不影响其他文档
				log.Errorf("[AnalysisService] 文档 %s 查询失败: %v", doc.DocID, err)
				answers[i] = model.AnswerResult{
					DocID:      doc.DocID,
					Filename:   doc.OriginalFile,
					Answer:     "Error processing query: " + err.Error(),
					Citation:   "Error",
					Confidence: 0,
				}
				return nil
			}
			if res.Filename == "" {
				res.Filename = doc.OriginalFile
			}
			answers[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	themes, err := s.themes.Synthesize(ctx, query, answers)
	if err != nil {
		return nil, err
	}
	return &model.AnalysisResult{Query: query, DocumentResults: answers, ThemeResult: *themes}, nil
}

func (s *analysisService) completedDocuments(ctx context.Context, docIDs []string) ([]model.Document, error) {
	if len(docIDs) == 0 {
		all, err := s.docs.FindAll(ctx)
		if err != nil {
			return nil, err
		}
		return filterCompleted(all), nil
	}
	found, err := s.docs.FindByDocIDs(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Document, len(found))
	for _, d := range found {
		byID[d.DocID] = d
	}
	seen := make(map[string]bool, len(docIDs))
	var ordered []model.Document
	for _, id := range docIDs {
		d, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, d)
	}
	return filterCompleted(ordered), nil
}

func filterCompleted(docs []model.Document) []model.Document {
	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		if d.Status == model.StatusCompleted {
			out = append(out, d)
		}
	}
	return out
}

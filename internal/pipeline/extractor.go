package pipeline

import (
	"context"
	"fmt"
	"os"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/pkg/log"
	"pai-docqa-go/pkg/metrics"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMinContentChars 低于该字符数的文本层视为扫描件，改走 OCR。
const DefaultMinContentChars = 100

// Extraction 是一次抽取的结果。
type Extraction struct {
	Chunks  []model.Chunk
	OCRUsed bool
}

// Extractor 把原始文件转换成有序分块：按文件类型选择快速文本抽取或 OCR，
// 文本层过少或快速路径出错时回退到 OCR。
type Extractor struct {
	fast            map[string]TextSource
	ocr             TextSource
	splitter        *RecursiveSplitter
	minContentChars int
}

// NewExtractor 创建抽取器，并注册 pdf、docx、txt、md 的快速抽取实现。
func NewExtractor(ocr TextSource, splitter *RecursiveSplitter, minContentChars int) *Extractor {
	if splitter == nil {
		splitter = NewRecursiveSplitter()
	}
	if minContentChars <= 0 {
		minContentChars = DefaultMinContentChars
	}
	e := &Extractor{
		fast:            map[string]TextSource{},
		ocr:             ocr,
		splitter:        splitter,
		minContentChars: minContentChars,
	}
	e.RegisterSource("pdf", pdfSource{})
	e.RegisterSource("docx", docxSource{})
	e.RegisterSource("txt", plainTextSource{})
	e.RegisterSource("md", plainTextSource{})
	return e
}

// RegisterSource 为文件类型设置快速抽取实现。
func (e *Extractor) RegisterSource(fileType string, src TextSource) {
	e.fast[strings.ToLower(fileType)] = src
}

// ExtractFile 读取本地文件后抽取。
func (e *Extractor) ExtractFile(ctx context.Context, path, fileType string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文件 %s 失败: %w: %w", path, err, model.ErrExtraction)
	}
	return e.Extract(ctx, data, filepath.Base(path), fileType)
}

// Extract 抽取文本并切块。失败时返回包装了 model.ErrExtraction 的错误。
func (e *Extractor) Extract(ctx context.Context, data []byte, fileName, fileType string) (*Extraction, error) {
	fileType = strings.ToLower(fileType)
	if !model.IsAllowedFileType(fileType) {
		return nil, fmt.Errorf("不支持的文件类型 %q: %w", fileType, model.ErrExtraction)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("文件 %s 内容为空: %w", fileName, model.ErrExtraction)
	}

	pages, ocrUsed, err := e.extractPages(ctx, data, fileName, fileType)
	if err != nil {
		return nil, err
	}

	chunks := e.chunk(pages, fileName)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("文件 %s 未生成任何文本分块: %w", fileName, model.ErrExtraction)
	}
	log.Infof("[Extractor] 文件 %s 抽取完成, 页数: %d, 分块数: %d, OCR: %t", fileName, len(pages), len(chunks), ocrUsed)
	return &Extraction{Chunks: chunks, OCRUsed: ocrUsed}, nil
}

func (e *Extractor) extractPages(ctx context.Context, data []byte, fileName, fileType string) ([]model.PageText, bool, error) {
	src, ok := e.fast[fileType]
	if model.IsImageType(fileType) || !ok {
		pages, err := e.runOCR(ctx, data, fileName, "image")
		return pages, true, err
	}

	pages, err := src.ExtractPages(ctx, data, fileName)
	if err != nil {
		log.Warnf("[Extractor] 快速抽取失败, 回退到 OCR, 文件: %s, Error: %v", fileName, err)
		pages, err = e.runOCR(ctx, data, fileName, "fast_path_error")
		return pages, true, err
	}
	if n := contentLength(pages); n < e.minContentChars {
		log.Infof("[Extractor] 文本层仅 %d 个字符 (< %d), 视为扫描件, 使用 OCR 重新抽取: %s", n, e.minContentChars, fileName)
		pages, err = e.runOCR(ctx, data, fileName, "low_content")
		return pages, true, err
	}
	return pages, false, nil
}

func (e *Extractor) runOCR(ctx context.Context, data []byte, fileName, reason string) ([]model.PageText, error) {
	metrics.OCRFallbacks.WithLabelValues(reason).Inc()
	if e.ocr == nil {
		return nil, fmt.Errorf("未配置 OCR 服务, 无法处理 %s: %w", fileName, model.ErrExtraction)
	}
	pages, err := e.ocr.ExtractPages(ctx, data, fileName)
	if err != nil {
		return nil, fmt.Errorf("OCR 抽取 %s 失败: %w: %w", fileName, err, model.ErrExtraction)
	}
	return pages, nil
}

// chunk 逐页切分，序号在整个文档内从 1 连续编号。
func (e *Extractor) chunk(pages []model.PageText, fileName string) []model.Chunk {
	var chunks []model.Chunk
	for _, page := range pages {
		label := model.PageLabel(page.Number)
		for _, text := range e.splitter.Split(page.Text) {
			chunks = append(chunks, model.Chunk{
				Seq:    len(chunks) + 1,
				Text:   text,
				Page:   label,
				Source: fileName,
			})
		}
	}
	return chunks
}

func contentLength(pages []model.PageText) int {
	n := 0
	for _, p := range pages {
		n += utf8.RuneCountInString(strings.TrimSpace(p.Text))
	}
	return n
}

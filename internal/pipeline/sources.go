package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"pai-docqa-go/internal/model"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv/v2"
	"github.com/ledongthuc/pdf"
)

// TextSource 从文件内容中按页抽取文本。
type TextSource interface {
	ExtractPages(ctx context.Context, data []byte, fileName string) ([]model.PageText, error)
}

// TextSourceFunc 让普通函数实现 TextSource。
type TextSourceFunc func(ctx context.Context, data []byte, fileName string) ([]model.PageText, error)

// ExtractPages 调用函数本身。
func (f TextSourceFunc) ExtractPages(ctx context.Context, data []byte, fileName string) ([]model.PageText, error) {
	return f(ctx, data, fileName)
}

// pdfSource 直接读取 PDF 文本层，每页一条记录。
type pdfSource struct{}

func (pdfSource) ExtractPages(_ context.Context, data []byte, _ string) (pages []model.PageText, err error) {
	// 解析器遇到损坏的 PDF 可能 panic
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("解析 PDF 失败: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 PDF 失败: %w", err)
	}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("读取第 %d 页文本失败: %w", i, err)
		}
		pages = append(pages, model.PageText{Number: i, Text: text})
	}
	return pages, nil
}

// docxSource 抽取 Word 文档正文，没有页码信息。
type docxSource struct{}

func (docxSource) ExtractPages(_ context.Context, data []byte, _ string) ([]model.PageText, error) {
	text, _, err := docconv.ConvertDocx(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解析 DOCX 失败: %w", err)
	}
	return []model.PageText{{Number: 0, Text: text}}, nil
}

// plainTextSource 读取 UTF-8 文本，换页符 \f 视为分页。
type plainTextSource struct{}

func (plainTextSource) ExtractPages(_ context.Context, data []byte, _ string) ([]model.PageText, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("文本文件不是有效的 UTF-8")
	}
	parts := strings.Split(string(data), "\f")
	pages := make([]model.PageText, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, model.PageText{Number: i + 1, Text: p})
	}
	return pages, nil
}

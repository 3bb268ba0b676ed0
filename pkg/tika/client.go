// Package tika 提供了一个与 Apache Tika 服务器交互的客户端，承担 OCR 抽取。
package tika

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"pai-docqa-go/internal/config"
	"pai-docqa-go/internal/model"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL   string
	ocrLanguage string
	httpClient  *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL:   strings.TrimRight(cfg.ServerURL, "/"),
		ocrLanguage: cfg.OCRLanguage,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// ExtractPages 以强制 OCR 的方式调用 Tika，解析 XHTML 中的 div.page 得到逐页文本。
// 图片等没有分页的结果作为页码未知的一整页返回。
func (c *Client) ExtractPages(ctx context.Context, data []byte, fileName string) ([]model.PageText, error) {
	headers := map[string]string{"X-Tika-PDFOcrStrategy": "ocr_only"}
	if c.ocrLanguage != "" {
		headers["X-Tika-OCRLanguage"] = c.ocrLanguage
	}
	body, err := c.put(ctx, bytes.NewReader(data), fileName, "text/html", headers)
	if err != nil {
		return nil, err
	}
	return ParseXHTMLPages(bytes.NewReader(body))
}

// ParseXHTMLPages 把 Tika 的 XHTML 输出转换为逐页文本。
func ParseXHTMLPages(r io.Reader) ([]model.PageText, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析 Tika 输出失败: %w", err)
	}
	// 块级元素之后补换行，避免相邻段落的文字粘连
	doc.Find("p, br, li, div, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var pages []model.PageText
	doc.Find("div.page").Each(func(i int, s *goquery.Selection) {
		pages = append(pages, model.PageText{Number: i + 1, Text: strings.TrimSpace(s.Text())})
	})
	if len(pages) > 0 {
		return pages, nil
	}
	text := strings.TrimSpace(doc.Find("body").Text())
	if text == "" {
		return nil, nil
	}
	return []model.PageText{{Number: 0, Text: text}}, nil
}

func (c *Client) put(ctx context.Context, body io.Reader, fileName, accept string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", detectMimeType(fileName))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("调用 Tika 超时: %w", model.ErrServiceTimeout)
		}
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return b, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

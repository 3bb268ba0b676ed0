package handler

import (
	"fmt"
	"io"
	"net/http"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/service"
	"pai-docqa-go/pkg/log"
	"strings"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService  service.DocumentService
	maxUploadMB int64
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService, maxUploadMB int64) *DocumentHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 16
	}
	return &DocumentHandler{docService: docService, maxUploadMB: maxUploadMB}
}

// Upload 接收 multipart 字段 file，校验扩展名后入队处理。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "缺少上传文件")
		return
	}
	fileType := model.FileTypeOf(fileHeader.Filename)
	if !model.IsAllowedFileType(fileType) {
		fail(c, http.StatusBadRequest, fmt.Sprintf("不支持的文件类型, 允许: %s", strings.Join(model.SupportedFileTypes(), ", ")))
		return
	}
	limit := h.maxUploadMB << 20
	if fileHeader.Size > limit {
		fail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("文件超过 %d MB", h.maxUploadMB))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		fail(c, http.StatusBadRequest, "无法读取上传文件")
		return
	}

	doc, err := h.docService.Upload(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		log.Error("Upload: failed", err)
		fail(c, statusOf(err), "上传失败: "+err.Error())
		return
	}
	ok(c, "文件已接收, 正在处理", gin.H{
		"docId":    doc.DocID,
		"filename": doc.OriginalFile,
		"status":   doc.Status,
	})
}

// List 返回所有文档及其状态。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context())
	if err != nil {
		log.Error("List: failed", err)
		fail(c, http.StatusInternalServerError, "获取文档列表失败")
		return
	}
	views := make([]model.DocumentView, 0, len(docs))
	for i := range docs {
		views = append(views, model.NewDocumentView(&docs[i]))
	}
	ok(c, "获取文档列表成功", views)
}

// Status 返回单个文档的处理状态。
func (h *DocumentHandler) Status(c *gin.Context) {
	doc, err := h.docService.Get(c.Request.Context(), c.Param("docId"))
	if err != nil {
		fail(c, statusOf(err), "文档不存在")
		return
	}
	ok(c, "获取文档状态成功", model.NewDocumentView(doc))
}

// Get 返回文档元数据与带分隔标记的全文。
func (h *DocumentHandler) Get(c *gin.Context) {
	dto, err := h.docService.GetContent(c.Request.Context(), c.Param("docId"))
	if err != nil {
		fail(c, statusOf(err), "文档内容不可用")
		return
	}
	ok(c, "获取文档内容成功", dto)
}

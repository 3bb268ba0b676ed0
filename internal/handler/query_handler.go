package handler

import (
	"net/http"
	"pai-docqa-go/internal/service"
	"pai-docqa-go/pkg/log"
	"strings"

	"github.com/gin-gonic/gin"
)

// QueryHandler 处理多文档问答与主题综合请求。
type QueryHandler struct {
	analysisService service.AnalysisService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(analysisService service.AnalysisService) *QueryHandler {
	return &QueryHandler{analysisService: analysisService}
}

type queryRequest struct {
	Query  string   `json:"query"`
	DocIDs []string `json:"doc_ids"`
}

// Query 对选中的已完成文档逐一问答，并综合主题。
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		log.Warnf("[QueryHandler] 查询请求失败: query 为空或请求体无效")
		fail(c, http.StatusBadRequest, "无效的查询参数")
		return
	}
	log.Infof("[QueryHandler] 收到查询请求, query: %s, docs: %d", req.Query, len(req.DocIDs))

	res, err := h.analysisService.QueryDocuments(c.Request.Context(), req.Query, req.DocIDs)
	if err != nil {
		log.Errorf("[QueryHandler] 查询失败: %v", err)
		fail(c, statusOf(err), "查询失败")
		return
	}
	ok(c, "查询成功", res)
}

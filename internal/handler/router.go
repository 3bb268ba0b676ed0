package handler

import (
	"net/http"
	"pai-docqa-go/internal/middleware"
	"pai-docqa-go/internal/service"
	"pai-docqa-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services 汇总路由需要的业务服务。
type Services struct {
	Documents   service.DocumentService
	Analysis    service.AnalysisService
	Chat        service.ChatService
	MaxUploadMB int64
}

// NewRouter 注册所有路由。jwtManager 为 nil 时 API 不做鉴权。
func NewRouter(svc Services, jwtManager *token.JWTManager) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Metrics(), middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := r.Group("/api/v1")
	if jwtManager != nil {
		apiV1.Use(middleware.AuthMiddleware(jwtManager))
	}
	{
		documents := apiV1.Group("/documents")
		docHandler := NewDocumentHandler(svc.Documents, svc.MaxUploadMB)
		{
			documents.POST("", docHandler.Upload)
			documents.GET("", docHandler.List)
			documents.GET("/:docId", docHandler.Get)
			documents.GET("/:docId/status", docHandler.Status)
			documents.GET("/:docId/chat", NewChatHandler(svc.Chat, svc.Documents).Handle)
		}
		apiV1.POST("/query", NewQueryHandler(svc.Analysis).Query)
	}
	return r
}

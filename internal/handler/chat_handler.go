package handler

import (
	"encoding/json"
	"net/http"
	"pai-docqa-go/internal/service"
	"pai-docqa-go/pkg/log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理单文档的 WebSocket 问答连接。
type ChatHandler struct {
	chatService service.ChatService
	docService  service.DocumentService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, docService service.DocumentService) *ChatHandler {
	return &ChatHandler{chatService: chatService, docService: docService}
}

// Handle 处理一个传入的 WebSocket 连接：每条文本消息是一个问题，按顺序逐个回答。
func (h *ChatHandler) Handle(c *gin.Context) {
	docID := c.Param("docId")
	if _, err := h.docService.Get(c.Request.Context(), docID); err != nil {
		fail(c, statusOf(err), "文档不存在")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立, 文档: %s", docID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
		question := strings.TrimSpace(string(message))
		if question == "" {
			continue
		}

		if err := h.chatService.StreamResponse(c.Request.Context(), question, docID, conn); err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			b, _ := json.Marshal(map[string]string{"type": "error", "error": err.Error()})
			if werr := conn.WriteMessage(websocket.TextMessage, b); werr != nil {
				return
			}
		}
	}
}

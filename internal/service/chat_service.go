package service

import (
	"context"
	"encoding/json"
	"pai-docqa-go/internal/model"
	"time"

	"github.com/gorilla/websocket"
)

// ChatService 定义了基于 WebSocket 的单文档流式问答接口。
type ChatService interface {
	StreamResponse(ctx context.Context, query, docID string, ws *websocket.Conn) error
}

type chatService struct {
	queryService QueryService
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(queryService QueryService) ChatService {
	return &chatService{queryService: queryService}
}

// StreamResponse 把答案分块包装为 {"chunk":"..."} 下发，最后发送带引用与置信度的完成通知。
func (s *chatService) StreamResponse(ctx context.Context, query, docID string, ws *websocket.Conn) error {
	interceptor := &wsWriterInterceptor{conn: ws}
	res, err := s.queryService.StreamAnswer(ctx, query, docID, interceptor)
	if err != nil {
		return err
	}
	return sendCompletion(ws, res)
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，满足 llm.MessageWriter 接口。
type wsWriterInterceptor struct {
	conn *websocket.Conn
}

func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn, res *model.AnswerResult) error {
	notif := map[string]interface{}{
		"type":       "completion",
		"status":     "finished",
		"citation":   res.Citation,
		"confidence": res.Confidence,
		"timestamp":  time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	return ws.WriteMessage(websocket.TextMessage, b)
}

// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"pai-docqa-go/internal/config"
	"pai-docqa-go/internal/model"
	"strings"
)

// MessageWriter defines an interface for writing WebSocket messages.
// Both a websocket.Conn and an in-memory collector satisfy it.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client.
type Client interface {
	// StreamChatMessages 以 role-based 消息与可选生成参数调用聊天接口，并将流式分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
	// Generate 返回完整的回答文本。
	Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig) Client {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return newDeepseekClient(cfg)
	}
}

// resolveParams 传参优先，否则使用配置中的非零值。
func resolveParams(cfg config.LLMGenerationConfig, gen *GenerationParams) GenerationParams {
	if gen != nil {
		return *gen
	}
	var p GenerationParams
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		p.Temperature = &t
	}
	if cfg.TopP != 0 {
		tp := cfg.TopP
		p.TopP = &tp
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		p.MaxTokens = &m
	}
	return p
}

// classify 把底层错误归类为 ErrServiceTimeout 或 ErrGeneration。
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrServiceTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrGeneration, err)
}

// collector 把流式分块拼接成完整文本。
type collector struct {
	sb strings.Builder
}

func (c *collector) WriteMessage(_ int, data []byte) error {
	c.sb.Write(data)
	return nil
}

func generate(ctx context.Context, c Client, messages []Message, gen *GenerationParams) (string, error) {
	var col collector
	if err := c.StreamChatMessages(ctx, messages, gen, &col); err != nil {
		return "", err
	}
	answer := strings.TrimSpace(col.sb.String())
	if answer == "" {
		return "", fmt.Errorf("empty completion: %w", model.ErrGeneration)
	}
	return answer, nil
}

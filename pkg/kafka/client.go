// Package kafka 提供基于 Kafka 的摄取任务队列实现。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"pai-docqa-go/internal/config"
	"pai-docqa-go/pkg/log"
	"pai-docqa-go/pkg/tasks"
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"
)

// messageWriter 是 Queue 使用的 kafka.Writer 方法子集。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader 是 Queue 使用的 kafka.Reader 方法子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// Queue 是 tasks.Queue 的 Kafka 实现。
// 主题只使用单个分区，保证消费顺序与提交顺序一致。
type Queue struct {
	writer messageWriter
	reader messageReader

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

// NewQueue 初始化 Kafka 生产者与消费者。
func NewQueue(cfg config.KafkaConfig) *Queue {
	brokers := strings.Split(cfg.Brokers, ",")
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	log.Infof("Kafka 队列初始化成功, topic: %s", cfg.Topic)
	return newQueue(writer, reader)
}

func newQueue(writer messageWriter, reader messageReader) *Queue {
	return &Queue{writer: writer, reader: reader, stop: make(chan struct{})}
}

// Enqueue 发送一个摄取任务到 Kafka，以文档 id 作为消息 key。
func (q *Queue) Enqueue(ctx context.Context, task tasks.IngestTask) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return tasks.ErrQueueClosed
	}

	taskBytes, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocID),
		Value: taskBytes,
	})
}

// Consume 逐条拉取并同步处理任务，处理完成后提交 offset。
// 处理失败由 handler 记录到文档状态中，因此消息无论成败都会被提交。
func (q *Queue) Consume(ctx context.Context, handle tasks.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if err := q.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()
	go func() {
		select {
		case <-q.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", q.reader.Config().Topic)
	for {
		m, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) && q.isClosed() {
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}

		var task tasks.IngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			// 消息格式错误，直接提交，避免阻塞队列
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else {
			log.Infof("收到 Kafka 任务: offset %d, DocID=%s", m.Offset, task.DocID)
			// 正在处理的任务不被打断
			if err := handle(context.WithoutCancel(ctx), task); err != nil {
				log.Errorf("处理任务失败: DocID=%s, Error: %v", task.DocID, err)
			}
		}
		if err := q.reader.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// Close 关闭生产者并通知消费循环退出。
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stop)
	q.mu.Unlock()

	return q.writer.Close()
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

var _ tasks.Queue = (*Queue)(nil)

// Package tasks defines ingestion jobs and the queue they travel through.
package tasks

import (
	"context"
	"errors"
)

// IngestTask represents one document waiting to be extracted and chunked.
type IngestTask struct {
	DocID     string `json:"doc_id"`
	ObjectKey string `json:"object_key"`
	FileName  string `json:"file_name"`
	FileType  string `json:"file_type"`
}

// ErrQueueClosed is returned when enqueuing after shutdown has begun.
var ErrQueueClosed = errors.New("queue closed")

// Handler processes a single task. The consumer calls it for one task at a time.
type Handler func(ctx context.Context, task IngestTask) error

// Queue is a FIFO of ingestion tasks with a single consumer.
// Close acts as the shutdown sentinel: tasks already queued are still delivered,
// after which Consume returns.
type Queue interface {
	Enqueue(ctx context.Context, task IngestTask) error
	Consume(ctx context.Context, handle Handler) error
	Close() error
}

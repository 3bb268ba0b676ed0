// Package storage 提供对象存储抽象，以及本地文件系统与 MinIO 两种实现。
package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound 表示对象不存在。
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore 定义了上传文件与分块产物使用的对象存储操作。
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	RemoveObject(ctx context.Context, key string) error
}

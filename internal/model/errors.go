package model

import (
	"context"
	"errors"
)

var (
	// ErrExtraction 文件不可读、类型不支持或抽取服务在回退后仍失败。
	ErrExtraction = errors.New("extraction failed")
	// ErrEmptyInput 没有可建立索引的分块。
	ErrEmptyInput = errors.New("empty input")
	// ErrNotFound 文档或其分块不存在。
	ErrNotFound = errors.New("not found")
	// ErrGeneration 语言模型调用失败。
	ErrGeneration = errors.New("generation failed")
	// ErrServiceTimeout 外部服务超时，按瞬时故障处理。
	ErrServiceTimeout = errors.New("external service timeout")
	// ErrUnsupportedFileType 上传的文件扩展名不在支持列表中。
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrInvalidTransition 状态迁移不合法或与当前状态冲突。
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsTransient 判断错误是否属于可通过回退恢复的外部服务故障。
func IsTransient(err error) bool {
	return errors.Is(err, ErrGeneration) ||
		errors.Is(err, ErrServiceTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

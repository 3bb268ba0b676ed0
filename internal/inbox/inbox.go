// Package inbox 把目录中的文件通过标准上传流程导入，并可持续监听新文件。
package inbox

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pai-docqa-go/internal/model"
	"pai-docqa-go/pkg/log"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle 是文件最后一次写入后等待多久再导入。
const DefaultSettle = 500 * time.Millisecond

// Uploader 是导入所需的文档服务子集。
type Uploader interface {
	Upload(ctx context.Context, fileName string, data []byte) (*model.Document, error)
	List(ctx context.Context) ([]model.Document, error)
}

// Importer 扫描目录并导入其中受支持的文件，同一内容只导入一次。
type Importer struct {
	dir    string
	docs   Uploader
	settle time.Duration

	mu     sync.Mutex
	seen   map[string]struct{}
	timers map[string]*time.Timer
}

// Option 配置 Importer。
type Option func(*Importer)

// WithSettle 设置写入静默时间。
func WithSettle(d time.Duration) Option {
	return func(i *Importer) {
		if d > 0 {
			i.settle = d
		}
	}
}

// New 创建导入器。
func New(dir string, docs Uploader, opts ...Option) *Importer {
	i := &Importer{
		dir:    dir,
		docs:   docs,
		settle: DefaultSettle,
		seen:   map[string]struct{}{},
		timers: map[string]*time.Timer{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportAll 遍历目录导入所有文件，返回本次新导入的数量。目录不存在时直接返回。
func (i *Importer) ImportAll(ctx context.Context) (int, error) {
	info, err := os.Stat(i.dir)
	if err != nil || !info.IsDir() {
		log.Infof("[Inbox] 目录 '%s' 不存在或不可用，跳过初始化导入", i.dir)
		return 0, nil
	}

	// 已经成功或仍在处理的同名文件视为已导入，重启后不会重复入队
	existing := map[string]bool{}
	if docs, err := i.docs.List(ctx); err == nil {
		for _, d := range docs {
			if d.Status != model.StatusFailed {
				existing[d.OriginalFile] = true
			}
		}
	} else {
		log.Warnf("[Inbox] 获取已有文档失败: %v", err)
	}

	imported := 0
	walkErr := filepath.Walk(i.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if existing[info.Name()] {
			log.Infof("[Inbox] 已存在，跳过: %s", info.Name())
			return nil
		}
		ok, err := i.importFile(ctx, path)
		if err != nil {
			log.Warnf("[Inbox] 导入失败: %s, err=%v", path, err)
			return nil
		}
		if ok {
			imported++
		}
		return nil
	})
	if walkErr != nil {
		return imported, fmt.Errorf("遍历目录失败: %w", walkErr)
	}
	log.Infof("[Inbox] 初始化导入完成, 新导入 %d 个文件", imported)
	return imported, nil
}

// importFile 读取文件并上传。不支持的类型、空文件和重复内容返回 false。
func (i *Importer) importFile(ctx context.Context, path string) (bool, error) {
	name := filepath.Base(path)
	if !model.IsAllowedFileType(model.FileTypeOf(name)) {
		log.Debugf("[Inbox] 不支持的文件类型，跳过: %s", name)
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("读取文件失败: %w", err)
	}
	if len(data) == 0 {
		log.Infof("[Inbox] 空文件跳过: %s", path)
		return false, nil
	}

	sum := fmt.Sprintf("%x", md5.Sum(data))
	i.mu.Lock()
	if _, dup := i.seen[sum]; dup {
		i.mu.Unlock()
		return false, nil
	}
	i.seen[sum] = struct{}{}
	i.mu.Unlock()

	doc, err := i.docs.Upload(ctx, name, data)
	if err != nil {
		i.mu.Lock()
		delete(i.seen, sum)
		i.mu.Unlock()
		return false, err
	}
	log.Infof("[Inbox] 导入完成并已入队: %s, DocID: %s", name, doc.DocID)
	return true, nil
}

// Watch 监听目录中新建或写入的文件，静默 settle 时间后导入。阻塞直到 ctx 结束。
func (i *Importer) Watch(ctx context.Context) error {
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(i.dir); err != nil {
		return fmt.Errorf("监听目录失败: %w", err)
	}
	log.Infof("[Inbox] 开始监听目录: %s", i.dir)

	defer i.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				i.schedule(ctx, ev.Name)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("[Inbox] 文件监听错误: %v", werr)
		}
	}
}

// schedule 对同一路径的连续写入去抖，只在最后一次事件后导入一次。
func (i *Importer) schedule(ctx context.Context, path string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if t, ok := i.timers[path]; ok {
		t.Stop()
	}
	i.timers[path] = time.AfterFunc(i.settle, func() {
		i.mu.Lock()
		delete(i.timers, path)
		i.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		if _, err := i.importFile(ctx, path); err != nil {
			log.Warnf("[Inbox] 导入失败: %s, err=%v", path, err)
		}
	})
}

func (i *Importer) stopTimers() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for path, t := range i.timers {
		t.Stop()
		delete(i.timers, path)
	}
}

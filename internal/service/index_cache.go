package service

import (
	"context"
	"errors"
	"fmt"
	"pai-docqa-go/internal/vectorindex"
	"pai-docqa-go/pkg/log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// cachedIndex 是缓存中的一个索引。refs 统计正在检索的调用方，
// 被淘汰的条目等 refs 归零后才关闭。
type cachedIndex struct {
	docID   string
	idx     *vectorindex.Index
	refs    int
	evicted bool
	closed  bool
}

// indexCache 按 (文档, 处理时间) 缓存索引，同一个键的并发构建只执行一次。
type indexCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *cachedIndex]
	latest  map[string]string
	pending []*cachedIndex
	group   singleflight.Group
}

func newIndexCache(size int) *indexCache {
	c := &indexCache{latest: make(map[string]string)}
	entries, err := lru.NewWithEvict[string, *cachedIndex](size, c.onEvict)
	if err != nil {
		panic(fmt.Sprintf("index cache size %d: %v", size, err))
	}
	c.entries = entries
	return c
}

func indexCacheKey(docID string, processedAt time.Time) string {
	return docID + "@" + processedAt.UTC().Format(time.RFC3339Nano)
}

// acquire 返回文档的索引和释放函数，调用方检索结束后必须调用 release。
// 缓存未命中时用 build 构建。
func (c *indexCache) acquire(ctx context.Context, docID string, processedAt time.Time,
	build func(context.Context) (*vectorindex.Index, error)) (*vectorindex.Index, func(), error) {
	key := indexCacheKey(docID, processedAt)
	for {
		if e := c.hold(key); e != nil {
			return e.idx, c.releaser(ctx, e), nil
		}
		v, err, shared := c.group.Do(key, func() (interface{}, error) {
			if e, ok := c.peek(key); ok {
				return e, nil
			}
			idx, err := build(ctx)
			if err != nil {
				return nil, err
			}
			return c.insert(ctx, docID, key, idx), nil
		})
		if err != nil {
			// 共享构建被发起方取消时，自己的请求仍然有效则重试
			if shared && ctx.Err() == nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				continue
			}
			return nil, nil, err
		}
		if e := v.(*cachedIndex); c.retain(e) {
			return e.idx, c.releaser(ctx, e), nil
		}
		// 条目在取得引用前已被淘汰并关闭
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}
}

func (c *indexCache) hold(key string) *cachedIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(key)
	if !ok || e.closed {
		return nil
	}
	e.refs++
	return e
}

func (c *indexCache) peek(key string) (*cachedIndex, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	if !ok || e.closed {
		return nil, false
	}
	return e, true
}

func (c *indexCache) retain(e *cachedIndex) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.closed {
		return false
	}
	e.refs++
	return true
}

func (c *indexCache) releaser(ctx context.Context, e *cachedIndex) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			e.refs--
			closeNow := e.evicted && e.refs == 0 && !e.closed
			if closeNow {
				e.closed = true
			}
			c.mu.Unlock()
			if closeNow {
				closeIndex(ctx, e)
			}
		})
	}
}

// insert 放入新构建的索引，同一文档旧处理时间的条目随之淘汰。
func (c *indexCache) insert(ctx context.Context, docID, key string, idx *vectorindex.Index) *cachedIndex {
	e := &cachedIndex{docID: docID, idx: idx}

	c.mu.Lock()
	if old, ok := c.latest[docID]; ok && old != key {
		c.entries.Remove(old)
	}
	if prev, ok := c.entries.Peek(key); ok {
		// Add 覆盖已有键时不触发淘汰回调
		c.onEvict(key, prev)
	}
	c.entries.Add(key, e)
	c.latest[docID] = key
	stale := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, s := range stale {
		closeIndex(ctx, s)
	}
	return e
}

// onEvict 由 lru 在 insert 持有 c.mu 时同步回调。
func (c *indexCache) onEvict(key string, e *cachedIndex) {
	e.evicted = true
	if c.latest[e.docID] == key {
		delete(c.latest, e.docID)
	}
	if e.refs == 0 && !e.closed {
		e.closed = true
		c.pending = append(c.pending, e)
	}
}

func closeIndex(ctx context.Context, e *cachedIndex) {
	if err := e.idx.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warnf("[QueryService] 释放文档 %s 的索引失败: %v", e.docID, err)
	}
}

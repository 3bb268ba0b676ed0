package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/vectorindex"
	"pai-docqa-go/pkg/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingEngine 记录构建次数；关闭后的 searcher 不再返回结果，和 ES 删除向量后的表现一致。
type trackingEngine struct {
	next vectorindex.Engine

	mu        sync.Mutex
	searchers []*trackingSearcher
}

func (e *trackingEngine) Build(ctx context.Context, vectors [][]float32) (vectorindex.Searcher, error) {
	inner, err := e.next.Build(ctx, vectors)
	if err != nil {
		return nil, err
	}
	s := &trackingSearcher{next: inner}
	e.mu.Lock()
	e.searchers = append(e.searchers, s)
	e.mu.Unlock()
	return s, nil
}

func (e *trackingEngine) builds() []*trackingSearcher {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*trackingSearcher(nil), e.searchers...)
}

type trackingSearcher struct {
	next   vectorindex.Searcher
	closed atomic.Bool
}

func (s *trackingSearcher) Search(ctx context.Context, vec []float32, k int) ([]vectorindex.Hit, error) {
	if s.closed.Load() {
		return nil, nil
	}
	return s.next.Search(ctx, vec, k)
}

func (s *trackingSearcher) Close(ctx context.Context) error {
	s.closed.Store(true)
	return s.next.Close(ctx)
}

// slowEmbedder 让构建停留一段时间，使并发请求重叠。
type slowEmbedder struct {
	next  embedding.Client
	delay time.Duration
}

func (e *slowEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	time.Sleep(e.delay)
	return e.next.CreateEmbedding(ctx, text)
}

func buildTestIndex(t *testing.T, engine vectorindex.Engine, docID string) *vectorindex.Index {
	t.Helper()
	chunks := []model.Chunk{{DocID: docID, Seq: 1, Text: geologyTexts[0], Page: "1"}}
	idx, err := vectorindex.NewBuilder(embedding.NewHashingClient(256), engine, 1).Build(context.Background(), chunks)
	require.NoError(t, err)
	return idx
}

func TestQueryService_ConcurrentAnswersShareOneIndex(t *testing.T) {
	f := newServiceFixture(t)
	f.saveDoc(t, "geo", "geo.txt", geologyTexts...)
	engine := &trackingEngine{next: vectorindex.NewMemoryEngine()}
	emb := &slowEmbedder{next: embedding.NewHashingClient(1024), delay: 5 * time.Millisecond}
	svc := NewQueryService(f.chunks, vectorindex.NewBuilder(emb, engine, 1), &fakeLLM{answer: "ok"}, 3)

	const callers = 8
	results := make([]*model.AnswerResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Answer(context.Background(), "glaciers", "geo")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.InDelta(t, 0.95, res.Confidence, 1e-9)
		assert.NotEqual(t, "N/A", res.Citation)
	}
	require.Len(t, engine.builds(), 1)
	assert.False(t, engine.builds()[0].closed.Load())
}

func TestIndexCache_EvictionClosesIndex(t *testing.T) {
	engine := &trackingEngine{next: vectorindex.NewMemoryEngine()}
	c := newIndexCache(1)
	ctx := context.Background()
	now := time.Now()

	_, release, err := c.acquire(ctx, "a", now, func(context.Context) (*vectorindex.Index, error) {
		return buildTestIndex(t, engine, "a"), nil
	})
	require.NoError(t, err)
	release()

	_, release, err = c.acquire(ctx, "b", now, func(context.Context) (*vectorindex.Index, error) {
		return buildTestIndex(t, engine, "b"), nil
	})
	require.NoError(t, err)
	defer release()

	builds := engine.builds()
	require.Len(t, builds, 2)
	assert.True(t, builds[0].closed.Load())
	assert.False(t, builds[1].closed.Load())
}

func TestIndexCache_HeldIndexClosesAfterRelease(t *testing.T) {
	engine := &trackingEngine{next: vectorindex.NewMemoryEngine()}
	c := newIndexCache(1)
	ctx := context.Background()
	now := time.Now()

	idxA, releaseA, err := c.acquire(ctx, "a", now, func(context.Context) (*vectorindex.Index, error) {
		return buildTestIndex(t, engine, "a"), nil
	})
	require.NoError(t, err)

	_, releaseB, err := c.acquire(ctx, "b", now, func(context.Context) (*vectorindex.Index, error) {
		return buildTestIndex(t, engine, "b"), nil
	})
	require.NoError(t, err)
	defer releaseB()

	builds := engine.builds()
	require.Len(t, builds, 2)
	assert.False(t, builds[0].closed.Load())
	hits, err := idxA.Search(ctx, geologyTexts[0], 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	releaseA()
	releaseA()
	assert.True(t, builds[0].closed.Load())
}

func TestIndexCache_ReprocessedDocumentReplacesIndex(t *testing.T) {
	engine := &trackingEngine{next: vectorindex.NewMemoryEngine()}
	c := newIndexCache(8)
	ctx := context.Background()
	first := time.Now()
	build := func(context.Context) (*vectorindex.Index, error) {
		return buildTestIndex(t, engine, "a"), nil
	}

	_, release, err := c.acquire(ctx, "a", first, build)
	require.NoError(t, err)
	release()
	_, release, err = c.acquire(ctx, "a", first, build)
	require.NoError(t, err)
	release()
	require.Len(t, engine.builds(), 1)

	_, release, err = c.acquire(ctx, "a", first.Add(time.Second), build)
	require.NoError(t, err)
	defer release()
	builds := engine.builds()
	require.Len(t, builds, 2)
	assert.True(t, builds[0].closed.Load())
	assert.False(t, builds[1].closed.Load())
}

func TestIndexCache_BuildErrorIsNotCached(t *testing.T) {
	c := newIndexCache(4)
	calls := 0
	build := func(context.Context) (*vectorindex.Index, error) {
		calls++
		return nil, model.ErrServiceTimeout
	}
	for i := 0; i < 2; i++ {
		_, _, err := c.acquire(context.Background(), "a", time.Now(), build)
		require.ErrorIs(t, err, model.ErrServiceTimeout)
	}
	assert.Equal(t, 2, calls)
}

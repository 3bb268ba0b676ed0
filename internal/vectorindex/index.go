package vectorindex

import (
	"context"
	"fmt"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/pkg/embedding"
	"pai-docqa-go/pkg/log"

	"golang.org/x/sync/errgroup"
)

// Builder 把分块向量化后交给 Engine 建立索引。
type Builder struct {
	embedder    embedding.Client
	engine      Engine
	concurrency int
}

// NewBuilder 创建 Builder，concurrency 限制同时进行的向量化请求数。
func NewBuilder(embedder embedding.Client, engine Engine, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Builder{embedder: embedder, engine: engine, concurrency: concurrency}
}

// Build 为 chunks 建立索引。空输入返回 ErrEmptyInput。
func (b *Builder) Build(ctx context.Context, chunks []model.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, model.ErrEmptyInput
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			vec, err := b.embedder.CreateEmbedding(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", chunks[i].Seq, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	searcher, err := b.engine.Build(ctx, vectors)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	log.Debugf("[VectorIndex] 索引构建完成, chunks: %d", len(chunks))

	own := make([]model.Chunk, len(chunks))
	copy(own, chunks)
	return &Index{chunks: own, searcher: searcher, embedder: b.embedder}, nil
}

// Index 是对一组分块的只读检索视图，可并发使用。
type Index struct {
	chunks   []model.Chunk
	searcher Searcher
	embedder embedding.Client
}

// Len 返回索引中的分块数。
func (i *Index) Len() int {
	return len(i.chunks)
}

// Chunks 返回分块的副本。
func (i *Index) Chunks() []model.Chunk {
	out := make([]model.Chunk, len(i.chunks))
	copy(out, i.chunks)
	return out
}

// Search 返回与 text 最相近的至多 k 个分块，按分数降序。
func (i *Index) Search(ctx context.Context, text string, k int) ([]model.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := i.embedder.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := i.searcher.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(i.chunks) {
			continue
		}
		out = append(out, model.ScoredChunk{Chunk: i.chunks[h.Position], Score: h.Score})
	}
	return out, nil
}

// Close 释放引擎侧资源。
func (i *Index) Close(ctx context.Context) error {
	return i.searcher.Close(ctx)
}

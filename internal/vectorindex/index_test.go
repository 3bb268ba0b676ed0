package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"pai-docqa-go/internal/model"
	"pai-docqa-go/pkg/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunksOf(texts ...string) []model.Chunk {
	out := make([]model.Chunk, len(texts))
	for i, t := range texts {
		out[i] = model.Chunk{DocID: "d1", Seq: i + 1, Text: t, Page: model.PageLabel(i + 1), Source: "d1.txt"}
	}
	return out
}

func newTestBuilder() *Builder {
	return NewBuilder(embedding.NewHashingClient(512), NewMemoryEngine(), 4)
}

func TestBuilder_EmptyInput(t *testing.T) {
	_, err := newTestBuilder().Build(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrEmptyInput)
}

func TestIndex_SearchRanksBestMatchFirst(t *testing.T) {
	ctx := context.Background()
	idx, err := newTestBuilder().Build(ctx, chunksOf(
		"Photosynthesis converts sunlight into chemical energy in plants.",
		"Glaciers carve deep valleys through slow erosion of bedrock.",
		"Interest rates influence inflation and household borrowing.",
	))
	require.NoError(t, err)
	defer idx.Close(ctx)

	hits, err := idx.Search(ctx, "how do glaciers carve valleys", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0].Chunk.Seq)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestIndex_SearchCapsAtLen(t *testing.T) {
	ctx := context.Background()
	idx, err := newTestBuilder().Build(ctx, chunksOf("alpha beta", "gamma delta"))
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, 2, idx.Len())

	hits, err = idx.Search(ctx, "alpha", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_DoesNotShareCallerSlice(t *testing.T) {
	ctx := context.Background()
	in := chunksOf("rivers carry sediment")
	idx, err := newTestBuilder().Build(ctx, in)
	require.NoError(t, err)

	in[0].Text = "mutated"
	assert.Equal(t, "rivers carry sediment", idx.Chunks()[0].Text)

	out := idx.Chunks()
	out[0].Text = "again"
	assert.Equal(t, "rivers carry sediment", idx.Chunks()[0].Text)
}

type failingEmbedder struct {
	failOn string
	calls  atomic.Int32
}

func (f *failingEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if text == f.failOn {
		return nil, errors.New("embedding service down")
	}
	return []float32{1, 0}, nil
}

func TestBuilder_EmbeddingFailure(t *testing.T) {
	b := NewBuilder(&failingEmbedder{failOn: "bad"}, NewMemoryEngine(), 2)
	_, err := b.Build(context.Background(), chunksOf("good", "bad", "good"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed chunk 2")
}

func TestMemoryEngine_OrderAndTies(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryEngine().Build(ctx, [][]float32{{0, 1}, {1, 0}, {1, 0}, {1, 1}})
	require.NoError(t, err)

	hits, err := s.Search(ctx, []float32{2, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 1, hits[0].Position)
	assert.Equal(t, 2, hits[1].Position)
	assert.Equal(t, 3, hits[2].Position)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.7071, hits[2].Score, 1e-3)
}

func TestMemoryEngine_ZeroVector(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryEngine().Build(ctx, [][]float32{{0, 0}, {1, 0}})
	require.NoError(t, err)
	hits, err := s.Search(ctx, []float32{0, 0}, 2)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Zero(t, h.Score)
	}
}

func TestIndex_ConcurrentSearch(t *testing.T) {
	ctx := context.Background()
	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("topic%d sentence about item%d", i, i)
	}
	idx, err := newTestBuilder().Build(ctx, chunksOf(texts...))
	require.NoError(t, err)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			hits, err := idx.Search(ctx, fmt.Sprintf("topic%d", g), 3)
			assert.NoError(t, err)
			assert.Len(t, hits, 3)
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}

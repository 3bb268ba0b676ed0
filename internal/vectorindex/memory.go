package vectorindex

import (
	"context"
	"math"
	"sort"
)

// MemoryEngine 在进程内做暴力余弦检索。
type MemoryEngine struct{}

// NewMemoryEngine 创建内存检索引擎。
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{}
}

// Build 复制并归一化向量，之后对输入切片的修改不影响索引。
func (MemoryEngine) Build(_ context.Context, vectors [][]float32) (Searcher, error) {
	s := &memorySearcher{vectors: make([][]float32, len(vectors))}
	for i, v := range vectors {
		s.vectors[i] = normalized(v)
	}
	return s, nil
}

type memorySearcher struct {
	vectors [][]float32
}

func (s *memorySearcher) Search(_ context.Context, vec []float32, k int) ([]Hit, error) {
	if k > len(s.vectors) {
		k = len(s.vectors)
	}
	if k <= 0 {
		return nil, nil
	}
	q := normalized(vec)
	hits := make([]Hit, len(s.vectors))
	for i, v := range s.vectors {
		hits[i] = Hit{Position: i, Score: dot(q, v)}
	}
	// 分数相同按下标升序，保证结果稳定
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	return hits[:k], nil
}

func (s *memorySearcher) Close(context.Context) error { return nil }

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// dot 维度不一致时只计算公共部分。
func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float32
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

// Package vectorindex 为一组分块建立临时向量索引并按相似度检索。
package vectorindex

import "context"

// Hit 是一次近邻命中，Position 是构建时向量的下标，Score 为余弦相似度。
type Hit struct {
	Position int
	Score    float32
}

// Searcher 是一次构建得到的只读检索结构。
type Searcher interface {
	Search(ctx context.Context, vec []float32, k int) ([]Hit, error)
	Close(ctx context.Context) error
}

// Engine 从向量集合构建 Searcher。
type Engine interface {
	Build(ctx context.Context, vectors [][]float32) (Searcher, error)
}

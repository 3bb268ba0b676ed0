package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/pkg/es"
	"pai-docqa-go/pkg/log"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
)

// maxNumCandidates 是 Elasticsearch kNN num_candidates 的上限。
const maxNumCandidates = 10000

// ElasticEngine 把每次构建写入共享索引，用 build_id 隔离，Close 时删除。
type ElasticEngine struct {
	client       *elasticsearch.Client
	indexName    string
	modelVersion string

	mu      sync.Mutex
	ensured map[int]bool
}

// NewElasticEngine 创建基于 Elasticsearch kNN 的检索引擎。
func NewElasticEngine(client *elasticsearch.Client, indexName, modelVersion string) *ElasticEngine {
	return &ElasticEngine{
		client:       client,
		indexName:    indexName,
		modelVersion: modelVersion,
		ensured:      make(map[int]bool),
	}
}

func (e *ElasticEngine) ensureIndex(ctx context.Context, dims int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ensured[dims] {
		return nil
	}
	if err := es.CreateIndexIfNotExists(ctx, e.client, e.indexName, dims); err != nil {
		return err
	}
	e.ensured[dims] = true
	return nil
}

// Build 批量写入向量并等待刷新，使其立即可检索。
func (e *ElasticEngine) Build(ctx context.Context, vectors [][]float32) (Searcher, error) {
	if len(vectors) == 0 {
		return nil, model.ErrEmptyInput
	}
	if err := e.ensureIndex(ctx, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("ensure vector index: %w", err)
	}

	buildID := uuid.NewString()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, v := range vectors {
		meta := map[string]any{"index": map[string]any{"_index": e.indexName, "_id": fmt.Sprintf("%s-%d", buildID, i)}}
		if err := enc.Encode(meta); err != nil {
			return nil, err
		}
		doc := model.VectorDocument{BuildID: buildID, Position: i, Vector: v, ModelVersion: e.modelVersion}
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}

	req := esapi.BulkRequest{Body: &buf, Refresh: "wait_for"}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("bulk index vectors: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("bulk index vectors: %s", res.String())
	}
	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	s := &elasticSearcher{engine: e, buildID: buildID, size: len(vectors)}
	if bulkResp.Errors {
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("bulk index vectors: some items failed")
	}
	log.Infof("[ElasticEngine] 已写入 %d 条向量, build_id: %s", len(vectors), buildID)
	return s, nil
}

type elasticSearcher struct {
	engine  *ElasticEngine
	buildID string
	size    int
}

type knnResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				Position int `json:"position"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *elasticSearcher) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k > s.size {
		k = s.size
	}
	if k <= 0 {
		return nil, nil
	}
	candidates := k * 10
	if candidates < 100 {
		candidates = 100
	}
	if candidates > maxNumCandidates {
		candidates = maxNumCandidates
	}
	query := map[string]any{
		"knn": map[string]any{
			"field":          "vector",
			"query_vector":   vec,
			"k":              k,
			"num_candidates": candidates,
			"filter": map[string]any{
				"term": map[string]any{"build_id": s.buildID},
			},
		},
		"_source": []string{"position"},
		"size":    k,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	c := s.engine.client
	res, err := c.Search(
		c.Search.WithContext(ctx),
		c.Search.WithIndex(s.engine.indexName),
		c.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search failed: %s", res.String())
	}

	var resp knnResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		// cosine 相似度下 _score = (1 + cos) / 2
		hits = append(hits, Hit{Position: h.Source.Position, Score: float32(2*h.Score - 1)})
	}
	return hits, nil
}

func (s *elasticSearcher) Close(ctx context.Context) error {
	body := fmt.Sprintf(`{"query":{"term":{"build_id":%q}}}`, s.buildID)
	c := s.engine.client
	res, err := c.DeleteByQuery(
		[]string{s.engine.indexName},
		strings.NewReader(body),
		c.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete vectors: %s", res.String())
	}
	return nil
}

package embedding

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math"
	"pai-docqa-go/pkg/log"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/blake2b"
)

// CachedClient stores vectors in Redis keyed by blake2b(model, text).
// Cache failures are logged and the underlying client is used instead.
type CachedClient struct {
	next  Client
	rdb   *redis.Client
	model string
	ttl   time.Duration
}

// NewCachedClient wraps next with a Redis-backed cache.
func NewCachedClient(next Client, rdb *redis.Client, model string, ttl time.Duration) *CachedClient {
	return &CachedClient{next: next, rdb: rdb, model: model, ttl: ttl}
}

// CacheKey returns the Redis key for a text under a model.
func CacheKey(model, text string) string {
	sum := blake2b.Sum256([]byte(model + "\x00" + text))
	return "docqa:emb:" + hex.EncodeToString(sum[:])
}

// CreateEmbedding returns the cached vector or computes and stores it.
func (c *CachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.model, text)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		if vec, ok := decodeVector(raw); ok {
			return vec, nil
		}
	} else if err != redis.Nil {
		log.Warnf("[EmbeddingCache] 读取缓存失败: %v", err)
	}

	vec, err := c.next.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, encodeVector(vec), c.ttl).Err(); err != nil {
		log.Warnf("[EmbeddingCache] 写入缓存失败: %v", err)
	}
	return vec, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, true
}

package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashingDimensions is used when no dimension is configured.
const DefaultHashingDimensions = 1024

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "has": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "to": true, "was": true,
	"what": true, "which": true, "with": true, "does": true, "do": true, "how": true,
}

// HashingClient is an offline embedder: lower-cased tokens minus stopwords are hashed
// into a fixed number of buckets and the counts are L2-normalised.
type HashingClient struct {
	dims int
}

// NewHashingClient creates a HashingClient with the given dimension.
func NewHashingClient(dims int) *HashingClient {
	if dims <= 0 {
		dims = DefaultHashingDimensions
	}
	return &HashingClient{dims: dims}
}

// CreateEmbedding never fails; text without tokens maps to the zero vector.
func (h *HashingClient) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range Tokenize(text) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(tok))
		vec[int(hasher.Sum32()%uint32(h.dims))]++
	}
	normalize(vec)
	return vec, nil
}

// Tokenize splits text into lower-case alphanumeric tokens without stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

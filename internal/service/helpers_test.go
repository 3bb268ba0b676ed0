package service

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/repository"
	"pai-docqa-go/internal/vectorindex"
	"pai-docqa-go/pkg/database"
	"pai-docqa-go/pkg/embedding"
	"pai-docqa-go/pkg/llm"
	"pai-docqa-go/pkg/storage"

	"github.com/stretchr/testify/require"
)

// fakeLLM 记录收到的消息并返回固定答案。
type fakeLLM struct {
	answer string
	err    error

	mu       sync.Mutex
	calls    int
	messages [][]llm.Message
}

func (f *fakeLLM) record(messages []llm.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, messages)
}

func (f *fakeLLM) Generate(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	f.record(messages)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) StreamChatMessages(_ context.Context, messages []llm.Message, _ *llm.GenerationParams, w llm.MessageWriter) error {
	f.record(messages)
	if f.err != nil {
		return f.err
	}
	return w.WriteMessage(1, []byte(f.answer))
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLLM) lastUserMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[len(f.messages)-1]
	return msgs[len(msgs)-1].Content
}

// countingEmbedder 统计向量化调用次数。
type countingEmbedder struct {
	next  embedding.Client
	calls atomic.Int32
}

func (c *countingEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.next.CreateEmbedding(ctx, text)
}

// failingEmbedder 对指定文本返回 err，fail 为空时所有调用都失败。
type failingEmbedder struct {
	next embedding.Client
	fail string
	err  error
}

func (e *failingEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if e.fail == "" || text == e.fail {
		return nil, e.err
	}
	return e.next.CreateEmbedding(ctx, text)
}

type serviceFixture struct {
	objects  *storage.LocalStore
	chunks   *repository.ChunkStore
	embedder *countingEmbedder
	builder  *vectorindex.Builder
	docs     repository.DocumentRepository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	dir := t.TempDir()
	objects, err := storage.NewLocalStore(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	db, err := database.NewSQLite(filepath.Join(dir, "docqa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	docs, err := repository.NewSQLiteDocumentRepository(context.Background(), db)
	require.NoError(t, err)

	emb := &countingEmbedder{next: embedding.NewHashingClient(1024)}
	return &serviceFixture{
		objects:  objects,
		chunks:   repository.NewChunkStore(objects),
		embedder: emb,
		builder:  vectorindex.NewBuilder(emb, vectorindex.NewMemoryEngine(), 2),
		docs:     docs,
	}
}

// saveDoc 持久化一个文档，第 i 个文本位于第 i 页。
func (f *serviceFixture) saveDoc(t *testing.T, docID, name string, texts ...string) {
	t.Helper()
	chunks := make([]model.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = model.Chunk{DocID: docID, Seq: i + 1, Text: text, Page: model.PageLabel(i + 1), Source: name}
	}
	meta := model.DocumentMetadata{
		DocID:          docID,
		OriginalFile:   name,
		FileType:       model.FileTypeOf(name),
		ProcessingTime: time.Now(),
	}
	require.NoError(t, f.chunks.Save(context.Background(), meta, chunks))
}

var (
	geologyTexts = []string{
		"Rivers carry sediment downstream and deposit it in broad deltas near the coast.",
		"Glaciers carve valleys into a U shape as moving ice grinds against the bedrock.",
		"Volcanoes erupt molten lava which cools into basalt and builds new islands.",
	}
	financeTexts = []string{
		"Central banks raise interest rates when inflation accelerates beyond targets.",
		"Bond prices fall as yields climb and investors demand higher coupons.",
		"Household mortgages become expensive after monetary tightening cycles.",
	}
)

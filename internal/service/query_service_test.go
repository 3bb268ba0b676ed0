package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"pai-docqa-go/internal/model"
	"pai-docqa-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryService_AnswerCitesBestChunk(t *testing.T) {
	f := newServiceFixture(t)
	f.saveDoc(t, "geo", "geo.pdf", geologyTexts...)
	gen := &fakeLLM{answer: "Glaciers carve U-shaped valleys."}
	svc := NewQueryService(f.chunks, f.builder, gen, 0)

	res, err := svc.Answer(context.Background(), "How do glaciers carve valleys?", "geo")
	require.NoError(t, err)
	assert.Equal(t, "Glaciers carve U-shaped valleys.", res.Answer)
	assert.Equal(t, 0.95, res.Confidence)
	assert.Equal(t, "geo.pdf", res.Filename)
	assert.True(t, strings.HasPrefix(res.Citation, "Page 2, Chunk 2"), res.Citation)
	assert.Len(t, strings.Split(res.Citation, "; "), 3)

	prompt := gen.lastUserMessage()
	assert.Contains(t, prompt, "User Query: How do glaciers carve valleys?")
	assert.Contains(t, prompt, "Document section (from Page 2, Chunk 2):\n"+geologyTexts[1])
	assert.Contains(t, gen.messages[0][0].Content, "ONLY")
}

func TestQueryService_GenerationFailureFallsBack(t *testing.T) {
	f := newServiceFixture(t)
	long := strings.Repeat("Glaciers grind bedrock slowly. ", 40)
	f.saveDoc(t, "geo", "geo.txt", long, geologyTexts[0])

	for _, cause := range []error{model.ErrGeneration, model.ErrServiceTimeout} {
		svc := NewQueryService(f.chunks, f.builder, &fakeLLM{err: cause}, 3)
		res, err := svc.Answer(context.Background(), "glaciers", "geo")
		require.NoError(t, err)
		assert.Equal(t, 0.7, res.Confidence)
		assert.True(t, strings.HasPrefix(res.Answer, "Found relevant information: "))
		assert.True(t, strings.HasSuffix(res.Answer, "..."))
		body := strings.TrimSuffix(strings.TrimPrefix(res.Answer, "Found relevant information: "), "...")
		assert.Equal(t, 500, utf8.RuneCountInString(body))
		assert.NotEmpty(t, res.Citation)
	}
}

func TestQueryService_UnknownDocument(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewQueryService(f.chunks, f.builder, &fakeLLM{answer: "x"}, 3)
	_, err := svc.Answer(context.Background(), "anything", "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestQueryService_ReusesIndexUntilReprocessed(t *testing.T) {
	f := newServiceFixture(t)
	f.saveDoc(t, "geo", "geo.txt", geologyTexts...)
	svc := NewQueryService(f.chunks, f.builder, &fakeLLM{answer: "ok"}, 3)
	ctx := context.Background()

	_, err := svc.Answer(ctx, "lava", "geo")
	require.NoError(t, err)
	assert.EqualValues(t, 4, f.embedder.calls.Load())

	_, err = svc.Answer(ctx, "lava", "geo")
	require.NoError(t, err)
	assert.EqualValues(t, 5, f.embedder.calls.Load())

	time.Sleep(2 * time.Millisecond)
	f.saveDoc(t, "geo", "geo.txt", geologyTexts[:2]...)
	_, err = svc.Answer(ctx, "lava", "geo")
	require.NoError(t, err)
	assert.EqualValues(t, 8, f.embedder.calls.Load())
}

type recordingWriter struct {
	frames []string
	err    error
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	if w.err != nil {
		return w.err
	}
	w.frames = append(w.frames, string(data))
	return nil
}

func TestQueryService_StreamAnswer(t *testing.T) {
	f := newServiceFixture(t)
	f.saveDoc(t, "geo", "geo.txt", geologyTexts...)
	ctx := context.Background()

	w := &recordingWriter{}
	svc := NewQueryService(f.chunks, f.builder, &fakeLLM{answer: "Basalt."}, 3)
	res, err := svc.StreamAnswer(ctx, "lava basalt", "geo", w)
	require.NoError(t, err)
	assert.Equal(t, []string{"Basalt."}, w.frames)
	assert.Equal(t, 0.95, res.Confidence)

	w = &recordingWriter{}
	svc = NewQueryService(f.chunks, f.builder, &fakeLLM{err: model.ErrGeneration}, 3)
	res, err = svc.StreamAnswer(ctx, "lava basalt", "geo", w)
	require.NoError(t, err)
	assert.Equal(t, 0.7, res.Confidence)
	require.Len(t, w.frames, 1)
	assert.Equal(t, res.Answer, w.frames[0])

	w = &recordingWriter{err: errors.New("client went away")}
	svc = NewQueryService(f.chunks, f.builder, &fakeLLM{answer: "Basalt."}, 3)
	_, err = svc.StreamAnswer(ctx, "lava basalt", "geo", w)
	assert.Error(t, err)
}

func TestJoinCitationsDeduplicatesInOrder(t *testing.T) {
	hits := []model.ScoredChunk{
		{Chunk: model.Chunk{Seq: 2, Page: "1"}},
		{Chunk: model.Chunk{Seq: 1, Page: "1"}},
		{Chunk: model.Chunk{Seq: 2, Page: "1"}},
	}
	assert.Equal(t, "Page 1, Chunk 2; Page 1, Chunk 1", joinCitations(hits))
}

func TestNoRelevantInfo(t *testing.T) {
	res := noRelevantInfo(&model.DocumentMetadata{DocID: "d"})
	assert.Equal(t, "No relevant information found in this document.", res.Answer)
	assert.Equal(t, "N/A", res.Citation)
	assert.Zero(t, res.Confidence)
}

var _ llm.Client = (*fakeLLM)(nil)

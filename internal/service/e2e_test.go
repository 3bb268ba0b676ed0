package service

import (
	"context"
	"strings"
	"testing"

	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/pipeline"
	"pai-docqa-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOCR struct {
	calls int
}

func (s *stubOCR) ExtractPages(context.Context, []byte, string) ([]model.PageText, error) {
	s.calls++
	return []model.PageText{{Number: 1, Text: "Scanned receipt total forty dollars."}}, nil
}

func threePageDocument() string {
	return strings.Join([]string{
		"Rivers carry sediment downstream.\n\nDeltas form where slow water drops silt and sand near the coast line.",
		"Glaciers carve valleys into a U shape.\n\nMoraines mark the furthest advance of the ice during the last cold period.",
		"Volcanoes build islands from lava.\n\nHotspots beneath oceanic plates leave chains of extinct volcanic islands.",
	}, "\f")
}

func TestEndToEnd_UploadProcessAnswer(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	queue := tasks.NewMemoryQueue(4)
	ocr := &stubOCR{}
	processor := pipeline.NewProcessor(f.objects, pipeline.NewExtractor(ocr, nil, 0), f.chunks)
	docs := NewDocumentService(f.docs, f.chunks, f.objects, queue)

	geo, err := docs.Upload(ctx, "geo.txt", []byte(threePageDocument()))
	require.NoError(t, err)
	scan, err := docs.Upload(ctx, "scan.txt", []byte("ten chars!"))
	require.NoError(t, err)
	require.NoError(t, queue.Close())
	require.NoError(t, pipeline.NewWorker(queue, processor, f.docs).Run(ctx))

	stored, err := docs.Get(ctx, geo.DocID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.False(t, stored.OCRUsed)
	assert.GreaterOrEqual(t, stored.ChunksCount, 3)

	chunks, err := f.chunks.Load(ctx, geo.DocID)
	require.NoError(t, err)
	assert.Equal(t, "Page 1, Chunk 1", chunks[0].Citation())
	assert.Equal(t, "Page 2, Chunk 2", chunks[1].Citation())

	scanned, err := docs.Get(ctx, scan.DocID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, scanned.Status)
	assert.True(t, scanned.OCRUsed)
	assert.Equal(t, 1, ocr.calls)

	gen := &fakeLLM{answer: "Glaciers carve U-shaped valleys."}
	res, err := NewQueryService(f.chunks, f.builder, gen, 3).Answer(ctx, "What shape do glaciers carve valleys into?", geo.DocID)
	require.NoError(t, err)
	assert.Equal(t, 0.95, res.Confidence)
	assert.True(t, strings.HasPrefix(res.Citation, "Page 2, Chunk 2"), res.Citation)
}

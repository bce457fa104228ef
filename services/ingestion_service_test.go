package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgdocs/models"
)

// flatEmbedder embeds everything to the same vector; ingestion tests only care
// about identity bookkeeping, not geometry.
type flatEmbedder struct{}

func (flatEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func newTestIngestion(store IndexStore) *IngestionService {
	return NewIngestionService(
		NewExtractorService(DefaultExtractionConfig()),
		NewCleaningService(DefaultCleaningConfig()),
		NewOCRService(DefaultExtractionConfig(), nil),
		NewSegmentationService(DefaultSegmentationConfig()),
		flatEmbedder{},
		store,
		nil,
		1,
	)
}

func contentPage(n int) models.Page {
	return models.Page{
		Number: n,
		Text: "This page describes the company's climate strategy in enough detail " +
			"to survive every cleaning gate applied during ingestion, including " +
			"the minimum length and alphabetic ratio checks.",
	}
}

func TestChunkDocument_SkipsCoverAndNavPages(t *testing.T) {
	svc := newTestIngestion(NewMemoryStore())
	doc := &models.SourceDocument{
		FileName:   "ACME_report_2023.pdf",
		SourceType: "companies",
		Company:    "ACME",
		Year:       "2023",
		Country:    "KR",
		PageCount:  5,
	}
	pages := []models.Page{
		{Number: 1, Text: "ACME SUSTAINABILITY COVER ART"},
		{Number: 2, Text: "OVERVIEW SOCIAL GOVERNANCE APPENDIX"},
		contentPage(3),
		contentPage(4),
		contentPage(5),
	}

	chunks, ocrTargets, _, events := svc.chunkDocument(doc, pages, nil)

	require.NotEmpty(t, chunks)
	assert.Empty(t, ocrTargets)
	seenPages := make(map[int]bool)
	for _, chunk := range chunks {
		seenPages[chunk.Metadata.Page] = true
	}
	assert.Equal(t, map[int]bool{3: true, 4: true, 5: true}, seenPages,
		"only pages 3-5 may contribute chunks")

	reasons := make(map[int]string)
	for _, event := range events {
		reasons[event.Page] = event.Reason
	}
	assert.Equal(t, "cover", reasons[1])
	assert.Equal(t, "nav_ui", reasons[2])
}

func TestChunkDocument_FlagsThinPagesForOCR(t *testing.T) {
	svc := newTestIngestion(NewMemoryStore())
	doc := &models.SourceDocument{FileName: "scan.pdf", SourceType: "domestic", PageCount: 3}
	pages := []models.Page{
		{Number: 1, Text: "cover"},
		{Number: 2, Text: "ab cde"}, // 5 alphabetic chars: image-only page
		contentPage(3),
	}

	_, ocrTargets, _, events := svc.chunkDocument(doc, pages, nil)
	assert.Equal(t, []int{2}, ocrTargets)

	var flagged bool
	for _, event := range events {
		if event.Page == 2 && event.Status == "ocr_candidate" {
			flagged = true
		}
	}
	assert.True(t, flagged)
}

func TestAppendOCRChunks(t *testing.T) {
	svc := newTestIngestion(NewMemoryStore())
	doc := &models.SourceDocument{FileName: "scan.pdf", SourceType: "domestic", Country: "KR"}

	t.Run("recovered text becomes one chunk", func(t *testing.T) {
		recovered := []PageText{{Page: 2, Text: "safety training records recovered from the scanned page image"}}
		chunks, _ := svc.appendOCRChunks(doc, recovered, nil, nil)
		require.Len(t, chunks, 1)
		assert.True(t, chunks[0].Metadata.OCR)
		assert.Equal(t, 2, chunks[0].Metadata.Page)
		assert.NotEmpty(t, chunks[0].ID)
	})

	t.Run("noise is dropped", func(t *testing.T) {
		recovered := []PageText{{Page: 2, Text: "€€ 12 34"}}
		chunks, events := svc.appendOCRChunks(doc, recovered, nil, nil)
		assert.Empty(t, chunks)
		require.Len(t, events, 1)
		assert.Equal(t, "ocr_noise", events[0].Reason)
	})
}

func TestIndexChunks_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestIngestion(store)
	ctx := context.Background()

	chunks := []models.Chunk{
		mkChunk("a.pdf", 2, "first passage of real content", false),
		mkChunk("a.pdf", 3, "second passage of real content", false),
	}

	added, err := svc.indexChunks(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	// Re-ingesting the unchanged corpus adds nothing.
	added, err = svc.indexChunks(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIndexChunks_DedupesWithinBatch(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestIngestion(store)

	duplicate := mkChunk("a.pdf", 2, "identical text", false)
	added, err := svc.indexChunks(context.Background(), []models.Chunk{duplicate, duplicate})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

// brokenStore fails every write, standing in for an unreachable vector DB.
type brokenStore struct {
	*MemoryStore
}

func (b *brokenStore) Upsert(context.Context, []models.Chunk, [][]float32) error {
	return errors.New("connection refused")
}

func TestIndexChunks_StoreFailureIsBatchFailure(t *testing.T) {
	svc := newTestIngestion(&brokenStore{MemoryStore: NewMemoryStore()})

	_, err := svc.indexChunks(context.Background(), []models.Chunk{
		mkChunk("a.pdf", 2, "some content", false),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreWrite)
}

func TestEngine_DegradedMode(t *testing.T) {
	store := NewMemoryStore()
	ingestion := newTestIngestion(store)
	retrieval := NewRetrievalService(DefaultRetrievalConfig(), store, flatEmbedder{})

	engine := NewEngine(context.Background(), ingestion, retrieval, store, probeFailEmbedder{}, nil)
	require.False(t, engine.Available())

	_, err := engine.IngestDirectory(context.Background(), t.TempDir(), false)
	assert.ErrorIs(t, err, ErrEngineUnavailable)

	chunks, err := engine.Search(context.Background(), models.NewRetrievalQuery("q"), SearchParams{})
	require.NoError(t, err, "a degraded engine answers with an empty list, not an error")
	assert.Empty(t, chunks)
}

type probeFailEmbedder struct{}

func (probeFailEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model not loaded")
}

func (probeFailEmbedder) Probe(context.Context) error {
	return errors.New("model not loaded")
}

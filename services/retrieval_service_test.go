package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgdocs/models"
)

// stubEmbedder returns canned vectors per text so tests are fully
// deterministic.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no stub vector for %q", text)
}

type failingRewriter struct{}

func (failingRewriter) Rewrite(context.Context, string, map[string]string) (string, error) {
	return "", errors.New("model offline")
}

type failingReranker struct{}

func (failingReranker) Rerank(context.Context, string, []models.Chunk, int) ([]models.Chunk, error) {
	return nil, errors.New("model offline")
}

// reverseReranker reverses the candidate order, standing in for a scorer that
// disagrees with vector-search order.
type reverseReranker struct{}

func (reverseReranker) Rerank(_ context.Context, _ string, candidates []models.Chunk, topK int) ([]models.Chunk, error) {
	reversed := make([]models.Chunk, 0, len(candidates))
	for i := len(candidates) - 1; i >= 0; i-- {
		reversed = append(reversed, candidates[i])
	}
	if len(reversed) > topK {
		reversed = reversed[:topK]
	}
	return reversed, nil
}

func mkChunk(file string, page int, text string, ocr bool) models.Chunk {
	return models.Chunk{
		ID:   ContentAddress(file, page, text),
		Text: text,
		Metadata: models.ChunkMetadata{
			SourceFile: file,
			SourceType: "companies",
			Page:       page,
			OCR:        ocr,
		},
	}
}

func seedStore(t *testing.T, chunks []models.Chunk, vectors [][]float32) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), chunks, vectors))
	return store
}

func lambdaPtr(v float64) *float64 { return &v }

func TestRetrieve_Deterministic(t *testing.T) {
	chunks := []models.Chunk{
		mkChunk("a.pdf", 2, "emissions reduction targets", false),
		mkChunk("a.pdf", 3, "water stewardship program", false),
		mkChunk("b.pdf", 4, "board level governance review", false),
	}
	vectors := [][]float32{{1, 0, 0}, {0.8, 0.5, 0}, {0, 0, 1}}
	store := seedStore(t, chunks, vectors)
	embedder := &stubEmbedder{vectors: map[string][]float32{"carbon question": {1, 0, 0}}}

	svc := NewRetrievalService(DefaultRetrievalConfig(), store, embedder)

	query := models.NewRetrievalQuery("carbon question")
	first, err := svc.Retrieve(context.Background(), query, SearchParams{TopK: 3})
	require.NoError(t, err)
	second, err := svc.Retrieve(context.Background(), query, SearchParams{TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical inputs must yield identical, order-stable results")
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	store := NewMemoryStore()
	embedder := &stubEmbedder{vectors: map[string][]float32{"anything": {1, 0, 0}}}
	svc := NewRetrievalService(DefaultRetrievalConfig(), store, embedder)

	chunks, err := svc.Retrieve(context.Background(), models.NewRetrievalQuery("anything"), SearchParams{})
	require.NoError(t, err, "an empty index is not an error")
	assert.Empty(t, chunks)
}

func TestRetrieve_RerankerOrdersResults(t *testing.T) {
	var chunks []models.Chunk
	var vectors [][]float32
	for i := 0; i < 10; i++ {
		chunks = append(chunks, mkChunk("r.pdf", i+2, fmt.Sprintf("candidate passage number %d", i), false))
		// Decreasing similarity to the query as i grows.
		vectors = append(vectors, []float32{1 - float32(i)*0.05, float32(i) * 0.05, 0})
	}
	store := seedStore(t, chunks, vectors)
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}

	svc := NewRetrievalService(DefaultRetrievalConfig(), store, embedder, WithReranker(reverseReranker{}))

	got, err := svc.Retrieve(context.Background(), models.NewRetrievalQuery("q"),
		SearchParams{TopK: 3, FetchK: 10, MMRLambda: lambdaPtr(0)})
	require.NoError(t, err)
	require.Len(t, got, 3, "reranker output defines the final size")

	// With lambda=0 the search order is pure similarity: 0,1,...,9. The
	// reverse reranker must therefore surface 9,8,7.
	assert.Equal(t, "candidate passage number 9", got[0].Text)
	assert.Equal(t, "candidate passage number 8", got[1].Text)
	assert.Equal(t, "candidate passage number 7", got[2].Text)
}

func TestRetrieve_RerankFailureKeepsSearchOrder(t *testing.T) {
	chunks := []models.Chunk{
		mkChunk("a.pdf", 2, "most similar", false),
		mkChunk("a.pdf", 3, "second", false),
		mkChunk("a.pdf", 4, "third", false),
	}
	vectors := [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0.5, 0.5, 0}}
	store := seedStore(t, chunks, vectors)
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}

	svc := NewRetrievalService(DefaultRetrievalConfig(), store, embedder, WithReranker(failingReranker{}))

	got, err := svc.Retrieve(context.Background(), models.NewRetrievalQuery("q"),
		SearchParams{TopK: 2, MMRLambda: lambdaPtr(0)})
	require.NoError(t, err, "a failing reranker must not abort the query")
	require.Len(t, got, 2)
	assert.Equal(t, "most similar", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
}

func TestRetrieve_RewriteFailureUsesRawQuestion(t *testing.T) {
	chunks := []models.Chunk{mkChunk("a.pdf", 2, "only entry", false)}
	store := seedStore(t, chunks, [][]float32{{1, 0, 0}})
	embedder := &stubEmbedder{vectors: map[string][]float32{"raw question": {1, 0, 0}}}

	svc := NewRetrievalService(DefaultRetrievalConfig(), store, embedder, WithRewriter(failingRewriter{}))

	got, err := svc.Retrieve(context.Background(), models.NewRetrievalQuery("raw question"), SearchParams{})
	require.NoError(t, err, "a failing rewriter must not abort the query")
	require.Len(t, got, 1)
}

func TestRetrieve_PostFilterDropsShortOCRChunks(t *testing.T) {
	longOCR := "recovered text long enough to be treated as genuine page content after recognition"
	chunks := []models.Chunk{
		mkChunk("a.pdf", 2, "ocr junk", true), // short OCR fragment, most similar
		mkChunk("a.pdf", 3, longOCR, true),
		mkChunk("a.pdf", 4, "plain short text", false),
	}
	vectors := [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0.8, 0.2, 0}}
	store := seedStore(t, chunks, vectors)
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}

	svc := NewRetrievalService(DefaultRetrievalConfig(), store, embedder)

	got, err := svc.Retrieve(context.Background(), models.NewRetrievalQuery("q"),
		SearchParams{TopK: 3, MMRLambda: lambdaPtr(0)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, chunk := range got {
		if chunk.Metadata.OCR {
			assert.GreaterOrEqual(t, len([]rune(chunk.Text)), DefaultRetrievalConfig().MinOCRChunkLen,
				"short OCR fragments must never reach the result")
		}
	}
	assert.Equal(t, longOCR, got[0].Text)
}

func TestRetrieve_FilterMerging(t *testing.T) {
	chunks := []models.Chunk{
		mkChunk("kr.pdf", 2, "companies entry", false),
		mkChunk("gl.pdf", 2, "global entry", false),
	}
	chunks[1].Metadata.SourceType = "global"
	vectors := [][]float32{{1, 0, 0}, {1, 0, 0}}
	store := seedStore(t, chunks, vectors)
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}

	cfg := DefaultRetrievalConfig()
	cfg.DefaultFilter = map[string]string{"source_type": "companies"}
	svc := NewRetrievalService(cfg, store, embedder)

	t.Run("default filter applies", func(t *testing.T) {
		got, err := svc.Retrieve(context.Background(), models.NewRetrievalQuery("q"), SearchParams{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "companies entry", got[0].Text)
	})

	t.Run("per-query filter overrides default", func(t *testing.T) {
		query := models.RetrievalQuery{Question: "q", Filter: map[string]string{"source_type": "global"}}
		got, err := svc.Retrieve(context.Background(), query, SearchParams{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "global entry", got[0].Text)
	})
}

func TestRetrieve_LambdaIncreasesDiversity(t *testing.T) {
	// Near-duplicate cluster close to the query plus two off-axis entries.
	chunks := []models.Chunk{
		mkChunk("d.pdf", 2, "duplicate one", false),
		mkChunk("d.pdf", 3, "duplicate two", false),
		mkChunk("d.pdf", 4, "duplicate three", false),
		mkChunk("d.pdf", 5, "different topic", false),
		mkChunk("d.pdf", 6, "another different topic", false),
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0.99, 0.14, 0},
		{0.98, 0.2, 0},
		{0.2, 0.98, 0},
		{0.1, 0.1, 0.99},
	}
	store := seedStore(t, chunks, vectors)
	embedder := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	svc := NewRetrievalService(DefaultRetrievalConfig(), store, embedder)

	vecByID := make(map[string][]float32, len(chunks))
	for i, chunk := range chunks {
		vecByID[chunk.ID] = vectors[i]
	}

	avgDissimilarity := func(lambda float64) float64 {
		got, err := svc.Retrieve(context.Background(), models.NewRetrievalQuery("q"),
			SearchParams{TopK: 3, FetchK: 5, MMRLambda: lambdaPtr(lambda)})
		require.NoError(t, err)
		require.Len(t, got, 3)

		var sum float64
		var pairs int
		for i := 0; i < len(got); i++ {
			for j := i + 1; j < len(got); j++ {
				sum += 1 - CosineSimilarity(vecByID[got[i].ID], vecByID[got[j].ID])
				pairs++
			}
		}
		return sum / float64(pairs)
	}

	relevanceOnly := avgDissimilarity(0)
	diversityHeavy := avgDissimilarity(0.9)
	assert.Greater(t, diversityHeavy, relevanceOnly,
		"raising lambda toward 1 must spread the result set apart")
}

func TestMaximalMarginalRelevance_PureRelevanceKeepsSimilarityOrder(t *testing.T) {
	query := []float32{1, 0}
	hits := []models.SearchHit{
		{Chunk: models.Chunk{ID: "far"}, Embedding: []float32{0, 1}},
		{Chunk: models.Chunk{ID: "near"}, Embedding: []float32{1, 0}},
		{Chunk: models.Chunk{ID: "mid"}, Embedding: []float32{0.7, 0.7}},
	}
	selected := MaximalMarginalRelevance(query, hits, 3, 0)
	require.Len(t, selected, 3)
	assert.Equal(t, "near", selected[0].Chunk.ID)
	assert.Equal(t, "mid", selected[1].Chunk.ID)
	assert.Equal(t, "far", selected[2].Chunk.ID)
}

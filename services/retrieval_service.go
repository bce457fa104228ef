package services

import (
	"context"
	"fmt"
	"log"

	"esgdocs/models"
)

// QueryRewriter maps a raw question and its metadata filter to a query string
// that better matches report vocabulary. Optional: when absent the raw
// question is used unmodified.
type QueryRewriter interface {
	Rewrite(ctx context.Context, question string, filter map[string]string) (string, error)
}

// Reranker reorders a candidate set by a second, usually more precise,
// relevance score and truncates to topK. Optional: when absent candidates keep
// their search order.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.Chunk, topK int) ([]models.Chunk, error)
}

// PostFilter decides whether a candidate survives the final noise pass.
type PostFilter func(chunk models.Chunk) bool

// RetrievalService runs the query-time pipeline: optional rewrite, MMR vector
// search, optional rerank, then the mandatory noise post-filter. Stages are
// strictly sequential; no stage reorders or re-introduces what an earlier
// stage removed.
type RetrievalService struct {
	cfg        RetrievalConfig
	store      IndexStore
	embedder   Embedder
	rewriter   QueryRewriter
	reranker   Reranker
	postFilter PostFilter
}

// RetrievalOption customizes a RetrievalService at construction.
type RetrievalOption func(*RetrievalService)

// WithRewriter installs a query-rewriting capability.
func WithRewriter(r QueryRewriter) RetrievalOption {
	return func(s *RetrievalService) { s.rewriter = r }
}

// WithReranker installs a reranking capability.
func WithReranker(r Reranker) RetrievalOption {
	return func(s *RetrievalService) { s.reranker = r }
}

// WithPostFilter replaces the default noise filter.
func WithPostFilter(f PostFilter) RetrievalOption {
	return func(s *RetrievalService) { s.postFilter = f }
}

func NewRetrievalService(cfg RetrievalConfig, store IndexStore, embedder Embedder, opts ...RetrievalOption) *RetrievalService {
	s := &RetrievalService{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
	}
	s.postFilter = DefaultPostFilter(cfg.MinOCRChunkLen)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultPostFilter drops OCR-origin chunks below the minimum length; very
// short OCR fragments are recognition artifacts, not content.
func DefaultPostFilter(minOCRChunkLen int) PostFilter {
	return func(chunk models.Chunk) bool {
		if chunk.Metadata.OCR && len([]rune(chunk.Text)) < minOCRChunkLen {
			return false
		}
		return true
	}
}

// SearchParams are the per-query knobs; zero values fall back to the
// service's configured defaults.
type SearchParams struct {
	TopK      int
	FetchK    int
	MMRLambda *float64
}

// Retrieve runs the full pipeline for one query and returns at most topK
// chunks ordered most relevant first. An empty index yields an empty result,
// not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, query models.RetrievalQuery, params SearchParams) ([]models.Chunk, error) {
	topK := params.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	fetchK := params.FetchK
	if fetchK <= 0 {
		fetchK = s.cfg.FetchK
	}
	if fetchK > s.cfg.FetchKCeiling {
		fetchK = s.cfg.FetchKCeiling
	}
	lambda := s.cfg.MMRLambda
	if params.MMRLambda != nil {
		lambda = *params.MMRLambda
	}

	// Stage 1: rewrite. A failing rewriter degrades to the raw question.
	question := query.Question
	if s.rewriter != nil {
		rewritten, err := s.rewriter.Rewrite(ctx, question, query.Filter)
		if err != nil {
			log.Printf("RETRIEVER: query rewrite failed, using raw question: %v", err)
		} else if rewritten != "" {
			question = rewritten
		}
	}

	// Stage 2: vector search with diversity control. This stage is mandatory
	// and its failure is fatal to the query.
	candidates, err := s.search(ctx, question, query.Filter, fetchK, lambda)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []models.Chunk{}, nil
	}

	// Stage 3: rerank. A failing reranker degrades to search order.
	if s.reranker != nil {
		reranked, err := s.reranker.Rerank(ctx, question, candidates, topK)
		if err != nil {
			log.Printf("RETRIEVER: rerank failed, keeping search order: %v", err)
			candidates = truncate(candidates, topK)
		} else {
			candidates = truncate(reranked, topK)
		}
	} else {
		candidates = truncate(candidates, topK)
	}

	// Stage 4: noise post-filter, then the final size bound.
	if s.postFilter != nil {
		kept := make([]models.Chunk, 0, len(candidates))
		for _, c := range candidates {
			if s.postFilter(c) {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}
	return truncate(candidates, topK), nil
}

func (s *RetrievalService) search(ctx context.Context, question string, queryFilter map[string]string, fetchK int, lambda float64) ([]models.Chunk, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.store.Query(ctx, vector, fetchK, mergeFilters(s.cfg.DefaultFilter, queryFilter))
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// MMR reorders the whole candidate set; the rerank and post-filter stages
	// downstream own the truncation to top_k.
	selected := MaximalMarginalRelevance(vector, hits, fetchK, lambda)
	chunks := make([]models.Chunk, 0, len(selected))
	for _, hit := range selected {
		chunks = append(chunks, hit.Chunk)
	}
	return chunks, nil
}

// mergeFilters layers the per-query filter over the pipeline default;
// per-query keys win.
func mergeFilters(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// MaximalMarginalRelevance picks k hits balancing relevance to the query
// against redundancy with already-selected hits. lambda is the diversity
// weight: 0 is pure relevance, 1 pure diversity.
func MaximalMarginalRelevance(queryVec []float32, hits []models.SearchHit, k int, lambda float64) []models.SearchHit {
	if k >= len(hits) {
		k = len(hits)
	}
	if k <= 0 {
		return nil
	}

	relevance := make([]float64, len(hits))
	for i, hit := range hits {
		relevance[i] = CosineSimilarity(queryVec, hit.Embedding)
	}

	selected := make([]models.SearchHit, 0, k)
	selectedIdx := make([]int, 0, k)
	remaining := make(map[int]bool, len(hits))
	for i := range hits {
		remaining[i] = true
	}

	for len(selected) < k {
		best := -1
		bestScore := -1e18
		for i := range hits {
			if !remaining[i] {
				continue
			}
			maxRedundancy := 0.0
			for _, j := range selectedIdx {
				sim := CosineSimilarity(hits[i].Embedding, hits[j].Embedding)
				if sim > maxRedundancy {
					maxRedundancy = sim
				}
			}
			score := (1-lambda)*relevance[i] - lambda*maxRedundancy
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}
		delete(remaining, best)
		selectedIdx = append(selectedIdx, best)
		selected = append(selected, hits[best])
	}
	return selected
}

func truncate(chunks []models.Chunk, n int) []models.Chunk {
	if len(chunks) > n {
		return chunks[:n]
	}
	return chunks
}

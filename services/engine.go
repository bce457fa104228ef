package services

import (
	"context"
	"errors"
	"log"

	"esgdocs/models"
)

// ErrEngineUnavailable is returned by ingestion when the embedding model could
// not be reached at startup. Retrieval degrades to empty results instead.
var ErrEngineUnavailable = errors.New("engine unavailable: embedding model unreachable")

// EmbedProber is implemented by embedders that can check their own
// availability.
type EmbedProber interface {
	Probe(ctx context.Context) error
}

// Engine owns one ingestion and one retrieval pipeline over a shared index
// store. It is explicitly constructed and injected by the caller; there are no
// process-wide singletons.
type Engine struct {
	ingestion *IngestionService
	retrieval *RetrievalService
	store     IndexStore
	available bool
	closeFn   func() error
}

// NewEngine probes the embedder once; on failure the engine comes up in
// degraded mode rather than crashing, and reports itself unavailable.
func NewEngine(ctx context.Context, ingestion *IngestionService, retrieval *RetrievalService, store IndexStore, embedder Embedder, closeFn func() error) *Engine {
	available := true
	if prober, ok := embedder.(EmbedProber); ok {
		if err := prober.Probe(ctx); err != nil {
			log.Printf("ENGINE: embedding model unreachable, starting in degraded mode: %v", err)
			available = false
		}
	}
	return &Engine{
		ingestion: ingestion,
		retrieval: retrieval,
		store:     store,
		available: available,
		closeFn:   closeFn,
	}
}

// Available reports whether the engine can embed, and therefore ingest and
// search.
func (e *Engine) Available() bool {
	return e.available
}

// IngestDirectory runs a full ingestion pass. See
// IngestionService.IngestDirectory.
func (e *Engine) IngestDirectory(ctx context.Context, root string, clear bool) (int, error) {
	if !e.available {
		return 0, ErrEngineUnavailable
	}
	return e.ingestion.IngestDirectory(ctx, root, clear)
}

// Search runs the retrieval pipeline. On a degraded engine it returns an empty
// list, not an error: "no index" looks like "no matches" to the caller.
func (e *Engine) Search(ctx context.Context, query models.RetrievalQuery, params SearchParams) ([]models.Chunk, error) {
	if !e.available {
		return []models.Chunk{}, nil
	}
	return e.retrieval.Retrieve(ctx, query, params)
}

// Watch blocks, ingesting PDFs as they appear under the data root.
func (e *Engine) Watch(ctx context.Context, root string) {
	e.ingestion.WatchDirectory(ctx, root)
}

// ChunkCount returns the number of entries in the index.
func (e *Engine) ChunkCount(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// Close releases the underlying store client.
func (e *Engine) Close() error {
	if e.closeFn != nil {
		return e.closeFn()
	}
	return nil
}

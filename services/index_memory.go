package services

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"

	"esgdocs/models"
)

// MemoryStore is an in-process IndexStore. It backs the engine's tests and is
// handy for running the pipeline without a ChromaDB server.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	chunk  models.Chunk
	vector []float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Upsert(_ context.Context, chunks []models.Chunk, vectors [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, chunk := range chunks {
		m.entries[chunk.ID] = memoryEntry{chunk: chunk, vector: vectors[i]}
	}
	return nil
}

func (m *MemoryStore) ExistingIDs(_ context.Context) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	existing := make(map[string]bool, len(m.entries))
	for id := range m.entries {
		existing[id] = true
	}
	return existing, nil
}

func (m *MemoryStore) Query(_ context.Context, vector []float32, k int, filter map[string]string) ([]models.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]models.SearchHit, 0, len(m.entries))
	for _, entry := range m.entries {
		if !matchesFilter(entry.chunk.Metadata, filter) {
			continue
		}
		sim := CosineSimilarity(vector, entry.vector)
		hits = append(hits, models.SearchHit{
			Chunk:     entry.chunk,
			Embedding: entry.vector,
			Distance:  float32(1 - sim),
		})
	}
	// Sort by distance, then ID, so equal inputs always return equal output.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

func matchesFilter(meta models.ChunkMetadata, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	fields := map[string]string{
		"source_file": meta.SourceFile,
		"source_type": meta.SourceType,
		"page":        strconv.Itoa(meta.Page),
		"company":     meta.Company,
		"year":        meta.Year,
		"country":     meta.Country,
		"ocr":         strconv.FormatBool(meta.OCR),
		"parser":      meta.Parser,
	}
	for key, want := range filter {
		if fields[key] != want {
			return false
		}
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either has no magnitude.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

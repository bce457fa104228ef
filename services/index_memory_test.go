package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgdocs/models"
)

func TestMemoryStore_UpsertOverwritesByAddress(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	chunk := mkChunk("a.pdf", 2, "stable text", false)
	require.NoError(t, store.Upsert(ctx, []models.Chunk{chunk}, [][]float32{{1, 0}}))
	require.NoError(t, store.Upsert(ctx, []models.Chunk{chunk}, [][]float32{{0, 1}}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-upserting the same address must not duplicate")

	existing, err := store.ExistingIDs(ctx)
	require.NoError(t, err)
	assert.True(t, existing[chunk.ID])
}

func TestMemoryStore_QueryFilter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a := mkChunk("a.pdf", 2, "companies text", false)
	b := mkChunk("b.pdf", 2, "global text", false)
	b.Metadata.SourceType = "global"
	require.NoError(t, store.Upsert(ctx, []models.Chunk{a, b}, [][]float32{{1, 0}, {1, 0}}))

	hits, err := store.Query(ctx, []float32{1, 0}, 10, map[string]string{"source_type": "global"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "global text", hits[0].Chunk.Text)

	hits, err = store.Query(ctx, []float32{1, 0}, 10, map[string]string{"source_type": "global", "page": "3"})
	require.NoError(t, err)
	assert.Empty(t, hits, "all filter keys must match")
}

func TestMemoryStore_Reset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	chunk := mkChunk("a.pdf", 2, "text", false)
	require.NoError(t, store.Upsert(ctx, []models.Chunk{chunk}, [][]float32{{1}}))
	require.NoError(t, store.Reset(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

package vectorclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, []Document{
		{Collection: "word_photos", DocID: "d1", ChunkNum: 0, Content: "a", ContentHash: "h1", Embedding: []float32{1, 0}},
		{Collection: "word_photos", DocID: "d2", ChunkNum: 0, Content: "b", ContentHash: "h2", Embedding: []float32{0, 1}},
	}))

	results, err := m.Search(ctx, "word_photos", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "d1", results[0].DocID)
}

func TestReingestReplacesChunks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, []Document{
		{Collection: "c", DocID: "d1", ChunkNum: 0, ContentHash: "old"},
		{Collection: "c", DocID: "d1", ChunkNum: 1, ContentHash: "old"},
	}))
	hash, err := m.LiveContentHash(ctx, "c", "d1")
	require.NoError(t, err)
	require.Equal(t, "old", hash)

	require.NoError(t, m.DeleteByDocID(ctx, "c", "d1"))
	require.NoError(t, m.Upsert(ctx, []Document{
		{Collection: "c", DocID: "d1", ChunkNum: 0, ContentHash: "new"},
	}))

	results, err := m.Search(ctx, "c", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "new", results[0].ContentHash)
}

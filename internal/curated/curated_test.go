package curated

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"pps/internal/embedding"
	"pps/internal/vectorclient"
)

func TestIngest_FirstTimeIsIndexed(t *testing.T) {
	ctx := context.Background()
	v := vectorclient.NewMemory()
	e := &embedding.FakeEmbedder{}
	s := New(v, e, "crystals")

	res, err := s.Ingest(ctx, "crystal-1", "First paragraph.\n\nSecond paragraph about Jeff.", map[string]string{"title": "intro"})
	require.NoError(t, err)
	require.Equal(t, ActionIndexed, res.Action)
	require.Equal(t, 1, res.Chunks)
}

func TestIngest_UnchangedWhenContentIdentical(t *testing.T) {
	ctx := context.Background()
	v := vectorclient.NewMemory()
	e := &embedding.FakeEmbedder{}
	s := New(v, e, "crystals")

	content := "Stable content that does not change between ingests."
	_, err := s.Ingest(ctx, "crystal-1", content, nil)
	require.NoError(t, err)

	res, err := s.Ingest(ctx, "crystal-1", content, nil)
	require.NoError(t, err)
	require.Equal(t, ActionUnchanged, res.Action)
}

func TestIngest_UpdatedReplacesStaleChunks(t *testing.T) {
	ctx := context.Background()
	v := vectorclient.NewMemory()
	e := &embedding.FakeEmbedder{}
	s := New(v, e, "word_photos")

	_, err := s.Ingest(ctx, "photo-1", "Old content here.", nil)
	require.NoError(t, err)

	res, err := s.Ingest(ctx, "photo-1", "Completely different new content describing a scene.", nil)
	require.NoError(t, err)
	require.Equal(t, ActionUpdated, res.Action)

	hash, err := v.LiveContentHash(ctx, "word_photos", "photo-1")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
}

func TestSearch_ReturnsIngestedChunks(t *testing.T) {
	ctx := context.Background()
	v := vectorclient.NewMemory()
	e := &embedding.FakeEmbedder{}
	s := New(v, e, "tech_rag")

	_, err := s.Ingest(ctx, "doc-1", "Some technical documentation about retries and backoff.", nil)
	require.NoError(t, err)

	results, err := s.Search(ctx, "retries and backoff", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

// Package curated implements the shared word-photo / crystal / tech-RAG
// contract (spec.md §4.4): vector-store-backed stores of curated markdown,
// content-hash-aware so re-ingest is idempotent.
package curated

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"pps/internal/chunk"
	"pps/internal/embedding"
	"pps/internal/vectorclient"
)

// Action enumerates the outcome of an Ingest call (spec.md §4.4).
type Action string

const (
	ActionIndexed   Action = "indexed"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// IngestResult is the shared ingest response shape.
type IngestResult struct {
	Action Action
	Chunks int
}

// Store is one curated collection (word-photos, crystals, or tech-RAG),
// sharing ingest/search behavior per spec.md §4.4.
type Store struct {
	vector     vectorclient.Client
	embedder   embedding.Embedder
	collection string
	chunkOpts  chunk.Options
}

// New returns a Store backed by collection, using embedder for query/chunk
// vectors.
func New(vector vectorclient.Client, embedder embedding.Embedder, collection string) *Store {
	return &Store{vector: vector, embedder: embedder, collection: collection, chunkOpts: chunk.DefaultOptions}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Ingest computes content's hash; if it matches what's already live for
// docID, this is a no-op (action=unchanged). Otherwise every prior chunk for
// docID is deleted before the new chunks are embedded and inserted
// (spec.md §4.4).
func (s *Store) Ingest(ctx context.Context, docID, content string, metadata map[string]string) (IngestResult, error) {
	hash := contentHash(content)
	liveHash, err := s.vector.LiveContentHash(ctx, s.collection, docID)
	if err != nil {
		return IngestResult{}, fmt.Errorf("check live content hash: %w", err)
	}

	chunks := chunk.Split(content, s.chunkOpts)
	if liveHash == hash && liveHash != "" {
		return IngestResult{Action: ActionUnchanged, Chunks: len(chunks)}, nil
	}

	action := ActionIndexed
	if liveHash != "" {
		if err := s.vector.DeleteByDocID(ctx, s.collection, docID); err != nil {
			return IngestResult{}, fmt.Errorf("delete stale chunks: %w", err)
		}
		action = ActionUpdated
	}

	if len(chunks) == 0 {
		return IngestResult{Action: action, Chunks: 0}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.embedder.EmbedText(ctx, texts)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed chunks: %w", err)
	}

	docs := make([]vectorclient.Document, len(chunks))
	for i, c := range chunks {
		meta := map[string]string{}
		for k, v := range metadata {
			meta[k] = v
		}
		docs[i] = vectorclient.Document{
			Collection:  s.collection,
			DocID:       docID,
			ChunkNum:    c.Num,
			Content:     c.Content,
			ContentHash: hash,
			Metadata:    meta,
			Embedding:   embeddings[i],
		}
	}
	if err := s.vector.Upsert(ctx, docs); err != nil {
		return IngestResult{}, fmt.Errorf("upsert chunks: %w", err)
	}
	return IngestResult{Action: action, Chunks: len(docs)}, nil
}

// Search embeds query and returns the top-limit matches from this collection.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]vectorclient.ScoredDocument, error) {
	embeddings, err := s.embedder.EmbedText(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.vector.Search(ctx, s.collection, embeddings[0], limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

// Package vectorclient is the ANN vector-index capability (C3): collections
// keyed by (collection, doc_id), each chunk carrying a content_hash so
// stale chunks can be replaced on re-ingest (spec.md §3 "Vector document").
package vectorclient

import "context"

// Document is one indexed chunk (spec.md §3 "Vector document").
type Document struct {
	Collection  string
	DocID       string
	ChunkNum    int
	Content     string
	ContentHash string
	Metadata    map[string]string
	Embedding   []float32
}

// ScoredDocument is a Document with the backend's similarity score (higher
// is closer; cosine similarity lies in [-1,1]).
type ScoredDocument struct {
	Document
	Score float64
}

// Client is the vector-index capability surface.
type Client interface {
	// Upsert writes docs, replacing any existing chunk with the same
	// (Collection, DocID, ChunkNum).
	Upsert(ctx context.Context, docs []Document) error

	// DeleteByDocID removes every chunk for (collection, docID) — the single
	// query the word-photo/crystal/tech-RAG re-ingest cleanup step relies on
	// (spec.md §4.4).
	DeleteByDocID(ctx context.Context, collection, docID string) error

	// Search returns the top-k documents in collection nearest to
	// queryEmbedding.
	Search(ctx context.Context, collection string, queryEmbedding []float32, limit int) ([]ScoredDocument, error)

	// LiveContentHash returns the content_hash currently stored for docID in
	// collection, or "" if no chunks exist (spec.md §4.4 idempotent re-ingest).
	LiveContentHash(ctx context.Context, collection, docID string) (string, error)

	Close() error
}

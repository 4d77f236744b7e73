package vectorclient

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process fake Client, mirroring manifold's
// databases.NewMemorySearch in-memory-fake idiom.
type Memory struct {
	mu   sync.Mutex
	docs map[string]map[string][]Document // collection -> docID -> chunks
}

// NewMemory returns an empty in-memory Client.
func NewMemory() *Memory {
	return &Memory{docs: map[string]map[string][]Document{}}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Upsert(ctx context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		if m.docs[d.Collection] == nil {
			m.docs[d.Collection] = map[string][]Document{}
		}
		chunks := m.docs[d.Collection][d.DocID]
		replaced := false
		for i, c := range chunks {
			if c.ChunkNum == d.ChunkNum {
				chunks[i] = d
				replaced = true
				break
			}
		}
		if !replaced {
			chunks = append(chunks, d)
		}
		m.docs[d.Collection][d.DocID] = chunks
	}
	return nil
}

func (m *Memory) DeleteByDocID(ctx context.Context, collection, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] != nil {
		delete(m.docs[collection], docID)
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, collection string, queryEmbedding []float32, limit int) ([]ScoredDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	var out []ScoredDocument
	for _, chunks := range m.docs[collection] {
		for _, c := range chunks {
			out = append(out, ScoredDocument{Document: c, Score: cosine(queryEmbedding, c.Embedding)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) LiveContentHash(ctx context.Context, collection, docID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks := m.docs[collection][docID]
	if len(chunks) == 0 {
		return "", nil
	}
	return chunks[0].ContentHash, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ Client = (*Memory)(nil)

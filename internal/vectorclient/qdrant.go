package vectorclient

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"pps/internal/config"
)

// Qdrant is the Client implementation backing C3, adapted from manifold's
// internal/persistence/databases/qdrant_vector.go (same client library,
// generalized from manifold's document-collection shape to this spec's
// word-photo/crystal/tech-RAG collections).
type Qdrant struct {
	client     *qdrant.Client
	dimensions uint64
	metric     qdrant.Distance
}

// Connect opens a Qdrant client against cfg, creating collections lazily on
// first Upsert (ensureCollection).
func Connect(ctx context.Context, cfg config.VectorConfig) (*Qdrant, error) {
	host, port, err := splitDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	metric := qdrant.Distance_Cosine
	if cfg.Metric == "dot" {
		metric = qdrant.Distance_Dot
	} else if cfg.Metric == "euclid" {
		metric = qdrant.Distance_Euclid
	}
	return &Qdrant{client: client, dimensions: uint64(cfg.Dimensions), metric: metric}, nil
}

func (q *Qdrant) Close() error { return q.client.Close() }

func (q *Qdrant) ensureCollection(ctx context.Context, collection string) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", collection, err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dimensions,
			Distance: q.metric,
		}),
	})
}

func pointID(docID string, chunkNum int) string {
	return fmt.Sprintf("%s#%d", docID, chunkNum)
}

func (q *Qdrant) Upsert(ctx context.Context, docs []Document) error {
	byCollection := map[string][]Document{}
	for _, d := range docs {
		byCollection[d.Collection] = append(byCollection[d.Collection], d)
	}
	for collection, cdocs := range byCollection {
		if err := q.ensureCollection(ctx, collection); err != nil {
			return err
		}
		points := make([]*qdrant.PointStruct, 0, len(cdocs))
		for _, d := range cdocs {
			payload := map[string]any{
				"doc_id":       d.DocID,
				"chunk_num":    d.ChunkNum,
				"content":      d.Content,
				"content_hash": d.ContentHash,
			}
			for k, v := range d.Metadata {
				payload[k] = v
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(pointID(d.DocID, d.ChunkNum)),
				Vectors: qdrant.NewVectors(d.Embedding...),
				Payload: qdrant.NewValueMap(payload),
			})
		}
		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("upsert into %s: %w", collection, err)
		}
	}
	return nil
}

func (q *Qdrant) DeleteByDocID(ctx context.Context, collection, docID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("doc_id", docID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("delete doc %s from %s: %w", docID, collection, err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, collection string, queryEmbedding []float32, limit int) ([]ScoredDocument, error) {
	if limit <= 0 {
		limit = 10
	}
	lim := uint64(limit)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	out := make([]ScoredDocument, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		doc := Document{
			Collection:  collection,
			DocID:       stringField(payload, "doc_id"),
			ChunkNum:    int(intField(payload, "chunk_num")),
			Content:     stringField(payload, "content"),
			ContentHash: stringField(payload, "content_hash"),
			Metadata:    map[string]string{},
		}
		for k, v := range payload {
			switch k {
			case "doc_id", "chunk_num", "content", "content_hash":
				continue
			}
			doc.Metadata[k] = v.GetStringValue()
		}
		out = append(out, ScoredDocument{Document: doc, Score: float64(p.GetScore())})
	}
	return out, nil
}

func (q *Qdrant) LiveContentHash(ctx context.Context, collection, docID string) (string, error) {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return "", fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return "", nil
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("doc_id", docID)},
		},
		Limit:       qdrant.PtrOf(uint64(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return "", fmt.Errorf("lookup content hash for %s: %w", docID, err)
	}
	if len(points) == 0 {
		return "", nil
	}
	return stringField(points[0].GetPayload(), "content_hash"), nil
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func intField(payload map[string]*qdrant.Value, key string) int64 {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	return v.GetIntegerValue()
}

func splitDSN(dsn string) (string, int, error) {
	host, port := dsn, 6334
	for i := len(dsn) - 1; i >= 0; i-- {
		if dsn[i] == ':' {
			host = dsn[:i]
			fmt.Sscanf(dsn[i+1:], "%d", &port)
			break
		}
	}
	if host == "" {
		return "", 0, fmt.Errorf("empty vector dsn")
	}
	return host, port, nil
}

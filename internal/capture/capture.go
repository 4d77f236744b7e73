// Package capture implements the raw-capture layer (L1, C5): an
// append-only turn store with backlog metering (spec.md §4.1).
package capture

import (
	"context"
	"fmt"
	"time"

	"pps/internal/store"
)

// Metadata describes a turn at the point of capture.
type Metadata struct {
	Channel        string
	AuthorName     string
	IsOwnUtterance bool
	SessionID      string
	ExternalID     string
}

// Layer is the raw-capture capability. All other layers read through the
// same store.TurnStore; only the scheduler (via store.TurnStore directly)
// writes summary_id/graphiti_batch_id (spec.md §4.1).
type Layer struct {
	turns store.TurnStore
}

// New wraps a TurnStore as the raw-capture layer.
func New(turns store.TurnStore) *Layer {
	return &Layer{turns: turns}
}

// Store appends one turn, auto-assigning id and timestamp. A write failure
// is surfaced to the caller; this layer never retries internally
// (spec.md §4.1 "Failure semantics").
func (l *Layer) Store(ctx context.Context, content string, meta Metadata) (int64, error) {
	if content == "" {
		return 0, fmt.Errorf("capture: content must not be empty")
	}
	t := store.Turn{
		Channel:        meta.Channel,
		AuthorName:     meta.AuthorName,
		IsOwnUtterance: meta.IsOwnUtterance,
		Content:        content,
	}
	if meta.SessionID != "" {
		t.SessionID = &meta.SessionID
	}
	if meta.ExternalID != "" {
		t.ExternalID = &meta.ExternalID
	}
	id, err := l.turns.Store(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("capture store: %w", err)
	}
	return id, nil
}

func (l *Layer) CountUnsummarized(ctx context.Context) (int, error) {
	return l.turns.CountUnsummarized(ctx)
}

func (l *Layer) CountUningestedToGraph(ctx context.Context) (int, error) {
	return l.turns.CountUningestedToGraph(ctx)
}

func (l *Layer) CountAll(ctx context.Context) (int, error) {
	return l.turns.CountAll(ctx)
}

func (l *Layer) FetchUnsummarized(ctx context.Context, limit int) ([]store.Turn, error) {
	return l.turns.FetchUnsummarized(ctx, limit)
}

func (l *Layer) FetchUningested(ctx context.Context, limit int) ([]store.Turn, error) {
	return l.turns.FetchUningested(ctx, limit)
}

func (l *Layer) Recent(ctx context.Context, limit int) ([]store.Turn, error) {
	return l.turns.Recent(ctx, limit)
}

func (l *Layer) GetSince(ctx context.Context, since time.Time, limit int) ([]store.Turn, error) {
	return l.turns.GetSince(ctx, since, limit)
}

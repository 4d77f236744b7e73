// Package summaries implements the summaries layer (L2, C6): windows of raw
// turns condensed into textual summaries (spec.md §4.2).
package summaries

import (
	"context"
	"fmt"

	"pps/internal/store"
)

// Layer is the summaries capability.
type Layer struct {
	summaries store.SummaryStore
	turns     store.TurnStore
}

// New wraps a SummaryStore/TurnStore pair as the summaries layer.
func New(summaries store.SummaryStore, turns store.TurnStore) *Layer {
	return &Layer{summaries: summaries, turns: turns}
}

// CreateAndStoreSummary validates and persists a summary transactionally
// (spec.md §4.2): the range must be non-empty and every turn in it must have
// summary_id IS NULL, or the call fails without side effects.
func (l *Layer) CreateAndStoreSummary(ctx context.Context, text string, startID, endID int64, channels []string, t store.SummaryType) (store.Summary, error) {
	s, err := l.summaries.CreateAndStoreSummary(ctx, text, startID, endID, channels, t)
	if err != nil {
		return store.Summary{}, fmt.Errorf("create summary: %w", err)
	}
	return s, nil
}

// Recent returns the newest-first summaries.
func (l *Layer) Recent(ctx context.Context, limit int) ([]store.Summary, error) {
	return l.summaries.RecentSummaries(ctx, limit)
}

// Search does a case-insensitive substring match on summary_text
// (spec.md §4.2).
func (l *Layer) Search(ctx context.Context, query string, limit int) ([]store.Summary, error) {
	return l.summaries.SearchSummaries(ctx, query, limit)
}

// Backlog is count(turns with summary_id IS NULL) (spec.md §4.2).
func (l *Layer) Backlog(ctx context.Context) (int, error) {
	return l.turns.CountUnsummarized(ctx)
}

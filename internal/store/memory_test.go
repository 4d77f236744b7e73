package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_StoreAndCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Store(ctx, Turn{Channel: "terminal", AuthorName: "Jeff", Content: "Hello there"})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	n, err := m.CountUnsummarized(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStore_ShortContentExcludedFromUnsummarized(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Store(ctx, Turn{Channel: "terminal", AuthorName: "Jeff", Content: "hi"})
	require.NoError(t, err)

	n, err := m.CountUnsummarized(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	all, err := m.CountAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, all)
}

func TestStore_ExternalIDDedup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	session := "s1"
	ext := "msg-42"
	id1, err := m.Store(ctx, Turn{Channel: "discord", AuthorName: "Jeff", Content: "same message twice", SessionID: &session, ExternalID: &ext})
	require.NoError(t, err)
	id2, err := m.Store(ctx, Turn{Channel: "discord", AuthorName: "Jeff", Content: "same message twice", SessionID: &session, ExternalID: &ext})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	all, err := m.CountAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, all)
}

func TestCreateAndStoreSummary_HappyPath(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Store(ctx, Turn{Channel: "terminal", AuthorName: "Jeff", Content: "Hello there"})
	require.NoError(t, err)

	s, err := m.CreateAndStoreSummary(ctx, "short greeting from Jeff", id, id, []string{"terminal"}, SummarySocial)
	require.NoError(t, err)
	require.Equal(t, 1, s.MessageCount)

	n, err := m.CountUnsummarized(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	recent, err := m.RecentSummaries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, 1, recent[0].MessageCount)
}

func TestCreateAndStoreSummary_RejectsOverlap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, _ := m.Store(ctx, Turn{Channel: "terminal", AuthorName: "Jeff", Content: "Hello there"})
	_, err := m.CreateAndStoreSummary(ctx, "first", id, id, []string{"terminal"}, SummarySocial)
	require.NoError(t, err)

	_, err = m.CreateAndStoreSummary(ctx, "second", id, id, []string{"terminal"}, SummarySocial)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestCreateAndStoreSummary_EmptyRange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.CreateAndStoreSummary(ctx, "nothing", 100, 200, []string{"terminal"}, SummarySocial)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestClaimForGraphBatch_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 10; i++ {
		_, err := m.Store(ctx, Turn{Channel: "terminal", AuthorName: "Jeff", Content: "turn number filler text"})
		require.NoError(t, err)
	}

	batch, turns, err := m.ClaimForGraphBatch(ctx, []string{"terminal"}, 10)
	require.NoError(t, err)
	require.Len(t, turns, 10)
	require.Equal(t, BatchInFlight, batch.Status)

	remaining, err := m.CountUningestedToGraph(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, remaining)

	// A second claim finds nothing left to take.
	_, turns2, err := m.ClaimForGraphBatch(ctx, []string{"terminal"}, 10)
	require.NoError(t, err)
	require.Empty(t, turns2)
}

func TestMarkFailed_ReleasesTurns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 3; i++ {
		_, err := m.Store(ctx, Turn{Channel: "terminal", AuthorName: "Jeff", Content: "turn number filler text"})
		require.NoError(t, err)
	}
	batch, turns, err := m.ClaimForGraphBatch(ctx, []string{"terminal"}, 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	require.NoError(t, m.MarkFailed(ctx, batch.ID, "rate_limit"))

	remaining, err := m.CountUningestedToGraph(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, remaining)

	got, err := m.Get(ctx, batch.ID)
	require.NoError(t, err)
	require.Equal(t, BatchFailed, got.Status)
	require.Equal(t, "rate_limit", got.ErrorCategory)
}

func TestResetIngestionMarkers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 5; i++ {
		_, err := m.Store(ctx, Turn{Channel: "terminal", AuthorName: "Jeff", Content: "turn number filler text"})
		require.NoError(t, err)
	}
	_, _, err := m.ClaimForGraphBatch(ctx, []string{"terminal"}, 5)
	require.NoError(t, err)

	require.NoError(t, m.ResetIngestionMarkers(ctx))

	all, err := m.CountAll(ctx)
	require.NoError(t, err)
	uningested, err := m.CountUningestedToGraph(ctx)
	require.NoError(t, err)
	require.Equal(t, all, uningested)
}

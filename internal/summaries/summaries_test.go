package summaries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"pps/internal/store"
)

func TestCreateAndStoreSummary_FirstTurnIngestion(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	l := New(mem, mem)

	id, err := mem.Store(ctx, store.Turn{Channel: "terminal", AuthorName: "Jeff", Content: "Hello"})
	require.NoError(t, err)

	backlog, err := l.Backlog(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, backlog) // "Hello" is <10 chars, excluded

	s, err := l.CreateAndStoreSummary(ctx, "short greeting from Jeff", id, id, []string{"terminal"}, store.SummarySocial)
	require.NoError(t, err)
	require.Equal(t, 1, s.MessageCount)

	recent, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, recent[0].MessageCount)
}

func TestSearch_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	l := New(mem, mem)
	id, _ := mem.Store(ctx, store.Turn{Channel: "terminal", AuthorName: "Jeff", Content: "debugging auth flow"})
	_, err := l.CreateAndStoreSummary(ctx, "Fixed the AUTH bug today", id, id, []string{"terminal"}, store.SummaryTechnical)
	require.NoError(t, err)

	results, err := l.Search(ctx, "auth", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

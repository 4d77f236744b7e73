package texture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pps/internal/graphclient"
	"pps/internal/llmcap"
)

func TestIngest_UpsertsExtractedEntitiesAndEdges(t *testing.T) {
	ctx := context.Background()
	g := graphclient.NewMemory()
	llm := &llmcap.FakeInvoker{Response: `{"entities":[{"name":"Jeff","labels":["Person"],"summary":"a friend"}],
		"edges":[{"subject":"Jeff","predicate":"knows","object":"Lyra","fact":"Jeff knows Lyra"}]}`}

	l := New(g, llm, "lyra", "claude-fake")
	ok, err := l.Ingest(ctx, "Jeff said hi to Lyra today.", Metadata{Channel: "terminal", Role: "user", Speaker: "Jeff", Timestamp: time.Now()})
	require.NoError(t, err)
	require.True(t, ok)

	items, err := l.Search(ctx, "knows", graphclient.SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, items)
}

func TestIngest_EmptyExtractionReturnsFalseNotError(t *testing.T) {
	ctx := context.Background()
	g := graphclient.NewMemory()
	llm := &llmcap.FakeInvoker{Response: `{"entities":[],"edges":[]}`}
	l := New(g, llm, "lyra", "claude-fake")

	ok, err := l.Ingest(ctx, "just noise", Metadata{Channel: "terminal", Role: "user", Speaker: "Jeff"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIngest_RejectsEmptyText(t *testing.T) {
	l := New(graphclient.NewMemory(), &llmcap.FakeInvoker{}, "lyra", "m")
	_, err := l.Ingest(context.Background(), "", Metadata{})
	require.Error(t, err)
}

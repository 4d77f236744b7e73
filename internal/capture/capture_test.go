package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"pps/internal/store"
)

func TestStore_AssignsIDAndIsCountable(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())

	id, err := l.Store(ctx, "Hello", Metadata{Channel: "terminal", AuthorName: "Jeff"})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	n, err := l.CountUnsummarized(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStore_RejectsEmptyContent(t *testing.T) {
	l := New(store.NewMemory())
	_, err := l.Store(context.Background(), "", Metadata{Channel: "terminal", AuthorName: "Jeff"})
	require.Error(t, err)
}

func TestFetchUningested(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemory())
	for i := 0; i < 3; i++ {
		_, err := l.Store(ctx, "hello there", Metadata{Channel: "terminal", AuthorName: "Jeff"})
		require.NoError(t, err)
	}
	turns, err := l.FetchUningested(ctx, 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
}

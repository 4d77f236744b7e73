package graphclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertEdge(ctx, Edge{UUID: "e1", SubjectName: "Jeff", Predicate: "knows", ObjectName: "Lyra", FactText: "Jeff knows Lyra", GroupID: "lyra"}))

	items, err := m.Search(ctx, "lyra", "knows", SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, items)
}

func TestSearch_FiltersDuplicateOfEdges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertEdge(ctx, Edge{UUID: "e1", SubjectName: "Jeff", Predicate: "knows", ObjectName: "Lyra", FactText: "Jeff knows Lyra", GroupID: "lyra"}))
	require.NoError(t, m.UpsertEdge(ctx, Edge{UUID: "e2", SubjectName: "LyraDup", Predicate: DuplicateEdgePredicate, ObjectName: "Lyra", FactText: "", GroupID: "lyra"}))

	items, err := m.Search(ctx, "lyra", "", SearchOptions{})
	require.NoError(t, err)
	for _, it := range items {
		if it.Edge != nil {
			require.NotEqual(t, DuplicateEdgePredicate, it.Edge.Predicate)
		}
	}
}

func TestDeleteEdge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertEdge(ctx, Edge{UUID: "e1", SubjectName: "Jeff", Predicate: "knows", ObjectName: "Lyra", FactText: "Jeff knows Lyra", GroupID: "lyra"}))
	require.NoError(t, m.DeleteEdge(ctx, "lyra", "e1"))

	items, err := m.Search(ctx, "lyra", "knows", SearchOptions{})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestExplore_BreadthLimited(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertEdge(ctx, Edge{UUID: "e1", SubjectName: "Jeff", Predicate: "knows", ObjectName: "Lyra", FactText: "f1", GroupID: "lyra"}))
	require.NoError(t, m.UpsertEdge(ctx, Edge{UUID: "e2", SubjectName: "Lyra", Predicate: "lives_at", ObjectName: "Treehouse", FactText: "f2", GroupID: "lyra"}))
	require.NoError(t, m.UpsertEdge(ctx, Edge{UUID: "e3", SubjectName: "Treehouse", Predicate: "located_in", ObjectName: "Forest", FactText: "f3", GroupID: "lyra"}))

	items, err := m.Explore(ctx, "lyra", "Jeff", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = m.Explore(ctx, "lyra", "Jeff", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

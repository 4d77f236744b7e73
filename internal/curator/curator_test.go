package curator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pps/internal/config"
	"pps/internal/graphclient"
	"pps/internal/store"
	"pps/internal/trace"
)

func seedGraph(t *testing.T) *graphclient.Memory {
	t.Helper()
	g := graphclient.NewMemory()
	ctx := context.Background()
	require.NoError(t, g.UpsertNode(ctx, graphclient.Node{Name: "Lyra", GroupID: "lyra"}))
	require.NoError(t, g.UpsertNode(ctx, graphclient.Node{Name: "?", GroupID: "lyra"}))
	require.NoError(t, g.UpsertEdge(ctx, graphclient.Edge{UUID: "e1", SubjectName: "Lyra", Predicate: "knows", ObjectName: "?", FactText: "Lyra knows ?", GroupID: "lyra", CreatedAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, g.UpsertEdge(ctx, graphclient.Edge{UUID: "e2", SubjectName: "Lyra", Predicate: "met", ObjectName: "Jeff", FactText: "Lyra met Jeff", GroupID: "lyra", CreatedAt: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, g.UpsertEdge(ctx, graphclient.Edge{UUID: "e3", SubjectName: "Lyra", Predicate: "met", ObjectName: "Jeff", FactText: "Lyra met Jeff", GroupID: "lyra", CreatedAt: time.Now().Add(-1 * time.Hour)}))
	return g
}

func testCfg() config.CuratorConfig {
	return config.CuratorConfig{
		Seeds:           []string{"Lyra"},
		VagueBlocklist:  []string{"?", "the", "..."},
		MinVisibleChars: 2,
		DuplicateMaxRel: 0.5,
		SweepInterval:   time.Hour,
	}
}

func TestSweep_ReportOnlyFindsVagueAndDuplicates(t *testing.T) {
	ctx := context.Background()
	g := seedGraph(t)
	c := New(g, nil, "lyra", testCfg())

	report, err := c.Sweep(ctx, ModeReportOnly)
	require.NoError(t, err)
	require.NotEmpty(t, report.VagueEntities)
	require.NotEmpty(t, report.DuplicateEdges)
	require.Empty(t, report.DeletedEdgeUUIDs)
}

func TestSweep_AutoDeleteRemovesStrictSubset(t *testing.T) {
	ctx := context.Background()
	g := seedGraph(t)
	mem := store.NewMemory()
	tw := trace.New(mem, "curator")
	c := New(g, tw, "lyra", testCfg())

	report, err := c.Sweep(ctx, ModeAutoDelete)
	require.NoError(t, err)
	require.NotEmpty(t, report.DeletedEdgeUUIDs)

	traces := mem.Traces()
	require.NotEmpty(t, traces)
}

func TestSweep_AutoDeleteRemovesDuplicateEdge(t *testing.T) {
	ctx := context.Background()
	g := seedGraph(t)
	c := New(g, nil, "lyra", testCfg())

	report, err := c.Sweep(ctx, ModeAutoDelete)
	require.NoError(t, err)
	require.Contains(t, report.DeletedEdgeUUIDs, "e3")
	require.NotContains(t, report.DeletedEdgeUUIDs, "e2")

	items, err := g.Search(ctx, "lyra", "", graphclient.SearchOptions{CenterEntityName: "Lyra", LimitEdges: 500, LimitNodes: 500, ExploreDepth: 1})
	require.NoError(t, err)
	metJeff := 0
	for _, it := range items {
		if it.Edge != nil && it.Edge.Predicate == "met" && it.Edge.ObjectName == "Jeff" {
			metJeff++
		}
	}
	require.Equal(t, 1, metJeff)
}

package recall

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pps/internal/config"
	"pps/internal/curated"
	"pps/internal/embedding"
	"pps/internal/graphclient"
	"pps/internal/llmcap"
	"pps/internal/store"
	"pps/internal/summaries"
	"pps/internal/texture"
	"pps/internal/vectorclient"
)

func testRecallConfig() config.RecallConfig {
	return config.RecallConfig{
		LimitPerLayer:      5,
		MaxContextBytes:    16384,
		StartupCrystals:    1,
		StartupSummaries:   2,
		StartupRecentTurns: 10,
		BacklogDisplayCap:  50,
		WeightGraph:        1.0,
		WeightCurated:      0.7,
		WeightSummaries:    0.4,
	}
}

func TestAmbientRecall_StartupModeSkipsSemanticSearch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.Store(ctx, store.Turn{Channel: "terminal", AuthorName: "Jeff", Content: "hello there friend"})
	require.NoError(t, err)
	sumLayer := summaries.New(mem, mem)

	e := New(nil, sumLayer, nil, nil, mem, "", testRecallConfig())
	result, err := e.AmbientRecall(ctx, "startup", Options{})
	require.NoError(t, err)
	require.Contains(t, result.FormattedContext, "Ambient Recall")
	require.Contains(t, result.FormattedContext, "memory_health")
}

func TestAmbientRecall_StartupModeIncludesManifestAndCrystals(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	sumLayer := summaries.New(mem, mem)
	id, err := mem.Store(ctx, store.Turn{Channel: "terminal", AuthorName: "Jeff", Content: "checked in on the project"})
	require.NoError(t, err)
	_, err = sumLayer.CreateAndStoreSummary(ctx, "Jeff checked in on the project", id, id, []string{"terminal"}, store.SummaryTechnical)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001-first.md"), []byte("the first crystal"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0002-second.md"), []byte("the second crystal"), 0o644))

	cfg := testRecallConfig()
	cfg.StartupCrystals = 1

	e := New(nil, sumLayer, nil, nil, mem, dir, cfg)
	result, err := e.AmbientRecall(ctx, "startup", Options{})
	require.NoError(t, err)
	require.Contains(t, result.FormattedContext, "[manifest]")
	require.Contains(t, result.FormattedContext, "Available:")
	require.Contains(t, result.FormattedContext, "[crystals]")
	require.Contains(t, result.FormattedContext, "the second crystal")
	require.NotContains(t, result.FormattedContext, "the first crystal")

	manifestIdx := indexOf(result.FormattedContext, "[manifest]")
	crystalsIdx := indexOf(result.FormattedContext, "[crystals]")
	summariesIdx := indexOf(result.FormattedContext, "[summaries]")
	require.True(t, manifestIdx < crystalsIdx)
	require.True(t, crystalsIdx < summariesIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestAmbientRecall_ContextualModeMergesLayers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	sumLayer := summaries.New(mem, mem)
	id, err := mem.Store(ctx, store.Turn{Channel: "terminal", AuthorName: "Jeff", Content: "debugging the auth flow today"})
	require.NoError(t, err)
	_, err = sumLayer.CreateAndStoreSummary(ctx, "Jeff debugged the auth flow", id, id, []string{"terminal"}, store.SummaryTechnical)
	require.NoError(t, err)

	g := graphclient.NewMemory()
	llm := &llmcap.FakeInvoker{Response: `{"entities":[{"name":"Jeff"}],"edges":[{"subject":"Jeff","predicate":"debugged","object":"auth_flow","fact":"Jeff debugged the auth flow"}]}`}
	texLayer := texture.New(g, llm, "lyra", "claude-fake")
	ok, err := texLayer.Ingest(ctx, "Jeff debugged the auth flow", texture.Metadata{Channel: "terminal", Role: "user", Speaker: "Jeff"})
	require.NoError(t, err)
	require.True(t, ok)

	v := vectorclient.NewMemory()
	emb := &embedding.FakeEmbedder{}
	techRAG := curated.New(v, emb, "tech_rag")
	_, err = techRAG.Ingest(ctx, "doc-1", "Notes on debugging auth flows and token refresh.", nil)
	require.NoError(t, err)

	e := New(texLayer, sumLayer, nil, techRAG, mem, "", testRecallConfig())
	result, err := e.AmbientRecall(ctx, "auth flow", Options{LimitPerLayer: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)
	require.Contains(t, result.FormattedContext, "[")
}

func TestMergeSections_DedupesAndCaps(t *testing.T) {
	sections := []section{
		{name: "graph", items: []Item{
			{Layer: "graph", ID: "e1", Score: 1, Priority: 1.0},
			{Layer: "graph", ID: "e1", Score: 0.5, Priority: 1.0},
			{Layer: "graph", ID: "e2", Score: 0.9, Priority: 1.0},
		}},
	}
	merged := mergeSections(sections, 1)
	require.Len(t, merged, 1)
	require.Equal(t, "e1", merged[0].ID)
}

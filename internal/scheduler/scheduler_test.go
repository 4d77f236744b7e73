package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"pps/internal/config"
	"pps/internal/graphclient"
	"pps/internal/llmcap"
	"pps/internal/store"
	"pps/internal/summaries"
	"pps/internal/texture"
)

var errTransient = errors.New("429 rate limit exceeded")

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		SummarizeThreshold: 2,
		SummarizeBatch:     10,
		GraphThreshold:     2,
		GraphBatch:         10,
		GraphConcurrency:   2,
		MaxBatchesPerTick:  3,
		MaxConsecutiveErrs: 5,
	}
}

func TestSummarizeTick_DrainsBacklogBelowThreshold(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	for i := 0; i < 5; i++ {
		_, err := mem.Store(ctx, store.Turn{Channel: "terminal", AuthorName: "Jeff", Content: "a meaningful turn of content"})
		require.NoError(t, err)
	}
	sumLayer := summaries.New(mem, mem)
	llm := &llmcap.FakeInvoker{Response: "a dense summary"}
	s := New(mem, mem, sumLayer, nil, NewLLMSummarizer(llm, "claude-fake"), testConfig(), logrus.New())

	err := s.SummarizeTick(ctx)
	require.NoError(t, err)

	backlog, err := mem.CountUnsummarized(ctx)
	require.NoError(t, err)
	require.Less(t, backlog, testConfig().SummarizeThreshold)
}

func TestGraphTick_SucceedsAndClearsBacklog(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	for i := 0; i < 5; i++ {
		_, err := mem.Store(ctx, store.Turn{Channel: "terminal", AuthorName: "Jeff", Content: "Jeff met Lyra for coffee"})
		require.NoError(t, err)
	}
	g := graphclient.NewMemory()
	llm := &llmcap.FakeInvoker{Response: `{"entities":[{"name":"Jeff"}],"edges":[]}`}
	texLayer := texture.New(g, llm, "lyra", "claude-fake")
	s := New(mem, mem, nil, texLayer, nil, testConfig(), logrus.New())

	err := s.GraphTick(ctx)
	require.NoError(t, err)

	backlog, err := mem.CountUningestedToGraph(ctx)
	require.NoError(t, err)
	require.Less(t, backlog, testConfig().GraphThreshold)
}

func TestGraphTick_TransientErrorReleasesBatch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	for i := 0; i < 5; i++ {
		_, err := mem.Store(ctx, store.Turn{Channel: "terminal", AuthorName: "Jeff", Content: "content that will fail to ingest"})
		require.NoError(t, err)
	}
	g := graphclient.NewMemory()
	failing := &llmcap.FakeInvoker{Err: errTransient}
	texLayer := texture.New(g, failing, "lyra", "claude-fake")
	s := New(mem, mem, nil, texLayer, nil, testConfig(), logrus.New())

	err := s.GraphTick(ctx)
	require.NoError(t, err)

	backlog, err := mem.CountUningestedToGraph(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, backlog)
}

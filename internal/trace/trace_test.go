package trace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pps/internal/store"
)

func TestLog_RedactsParams(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	w := New(mem, "rpc")

	require.NoError(t, w.Log(ctx, Event{
		SessionID: "s1",
		EventType: "store_message",
		Params:    map[string]string{"content": "hi", "token": "super-secret"},
		Duration:  5 * time.Millisecond,
	}))

	traces := mem.Traces()
	require.Len(t, traces, 1)
	require.NotContains(t, string(traces[0].EventData), "super-secret")
	require.Contains(t, string(traces[0].EventData), "REDACTED")
}

func TestSpan_RecordsError(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	w := New(mem, "scheduler")

	span := w.Timer("s1", "ingest_batch", nil)
	span.Stop(ctx, errors.New("boom"))

	traces := mem.Traces()
	require.Len(t, traces, 1)
	require.Contains(t, string(traces[0].EventData), "boom")
}

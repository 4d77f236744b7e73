// Package trace implements the single TraceWriter used by every layer
// (SPEC_FULL.md §11.4, grounded on original_source/pps/layers/unified_tracer.py
// and daemon/trace_logger.py, which unify what would otherwise be ad hoc
// per-layer logging), writing the durable daemon_traces record named in
// spec.md §3 and required by every RPC endpoint in spec.md §4.8.
package trace

import (
	"context"
	"encoding/json"
	"time"

	"pps/internal/observability"
	"pps/internal/store"
)

// MaxParamBytes bounds the truncated params stored per event (spec.md §4.8
// "truncated params").
const MaxParamBytes = 2048

// Writer logs trace events to the relational store, redacting and
// truncating params before they are written.
type Writer struct {
	traces     store.TraceStore
	daemonType string
}

// New returns a Writer that tags every event with daemonType (e.g. "rpc",
// "scheduler", "curator").
func New(traces store.TraceStore, daemonType string) *Writer {
	return &Writer{traces: traces, daemonType: daemonType}
}

// Event is a single operation to record.
type Event struct {
	SessionID string
	EventType string
	Params    any
	Duration  time.Duration
	Err       error
}

// Log redacts and truncates Params, then writes the event synchronously.
// Errors writing the trace itself are returned to the caller but never
// block the operation the trace describes (spec.md §4.8: "logs ... synchronously
// to the relational store" — synchronous here means ordered-after, not that
// a trace failure should fail the request).
func (w *Writer) Log(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e.Params)
	if err != nil {
		raw = []byte("{}")
	}
	data := map[string]json.RawMessage{
		"params": observability.TruncateJSON(raw, MaxParamBytes),
	}
	if e.Err != nil {
		errMsg, _ := json.Marshal(e.Err.Error())
		data["error"] = errMsg
	}
	payload, _ := json.Marshal(data)

	durMS := e.Duration.Milliseconds()
	return w.traces.Log(ctx, store.TraceEvent{
		SessionID:  e.SessionID,
		DaemonType: w.daemonType,
		Timestamp:  time.Now(),
		EventType:  e.EventType,
		EventData:  payload,
		DurationMS: &durMS,
	})
}

// Timer starts timing an operation; call Stop with the outcome to log it.
func (w *Writer) Timer(sessionID, eventType string, params any) *Span {
	return &Span{w: w, sessionID: sessionID, eventType: eventType, params: params, start: time.Now()}
}

// Span is an in-flight traced operation.
type Span struct {
	w         *Writer
	sessionID string
	eventType string
	params    any
	start     time.Time
}

// Stop logs the span's elapsed duration and outcome.
func (s *Span) Stop(ctx context.Context, err error) {
	_ = s.w.Log(ctx, Event{
		SessionID: s.sessionID,
		EventType: s.eventType,
		Params:    s.params,
		Duration:  time.Since(s.start),
		Err:       err,
	})
}

// Package store is the relational-store capability (C4): durable tables for
// raw turns, summaries, graph-ingestion batches, and traces (spec.md §3,
// §6). It owns turns, summaries, and batch records; the graph and vector
// clients own their own data (spec.md §3 "Ownership").
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound mirrors manifold's persistence.ErrNotFound sentinel-error
// idiom: callers use errors.Is instead of comparing strings.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidRange is returned by CreateAndStoreSummary when the requested
// turn range is empty or overlaps an existing summary (spec.md §4.2).
var ErrInvalidRange = errors.New("store: invalid or already-summarized turn range")

// Turn is the raw-capture record (spec.md §3 "Turn").
type Turn struct {
	ID              int64
	CreatedAt       time.Time
	Channel         string
	AuthorName      string
	IsOwnUtterance  bool
	Content         string
	SessionID       *string
	ExternalID      *string
	SummaryID       *int64
	GraphitiBatchID *int64
}

// SummaryType enumerates spec.md §3's summary_type values.
type SummaryType string

const (
	SummaryWork      SummaryType = "work"
	SummarySocial    SummaryType = "social"
	SummaryTechnical SummaryType = "technical"
	SummaryMixed     SummaryType = "mixed"
)

// Summary is a textual digest over a contiguous turn range (spec.md §3 "Summary").
type Summary struct {
	ID            int64
	SummaryText   string
	StartTurnID   int64
	EndTurnID     int64
	MessageCount  int
	Channels      []string
	SummaryType   SummaryType
	CreatedAt     time.Time
}

// BatchStatus enumerates spec.md §4.5's batch state machine states.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchInFlight  BatchStatus = "in_flight"
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
)

// Batch is a graph-ingestion promotion unit (spec.md §3 "Graph-ingestion batch").
type Batch struct {
	ID            int64
	CreatedAt     time.Time
	TurnIDRange   string // e.g. "105-114", display/audit only; turn_ids is canonical
	TurnIDs       []int64
	Channels      []string
	Status        BatchStatus
	ErrorCategory string
}

// TraceEvent is the append-only observability record (spec.md §3 "Trace event").
type TraceEvent struct {
	ID          int64
	SessionID   string
	DaemonType  string
	Timestamp   time.Time
	EventType   string
	EventData   []byte // redacted/truncated JSON, see internal/observability
	DurationMS  *int64
}

// TerminalSession mirrors the schema's terminal_sessions table (spec.md §6),
// used by the terminal-channel adapter to track session lifecycle metadata.
type TerminalSession struct {
	SessionID string
	StartTime time.Time
	EndTime   *time.Time
	CWD       *string
	Metadata  []byte
}

// GraphitiStats answers graphiti_ingestion_stats() (spec.md §4.8).
type GraphitiStats struct {
	Pending   int
	InFlight  int
	Succeeded int
	Failed    int
}

// TurnStore is the raw-capture layer contract (spec.md §4.1).
type TurnStore interface {
	// Store appends one turn, returning its assigned id. Short content
	// (<10 chars) is still accepted but excluded from FetchUnsummarized.
	Store(ctx context.Context, t Turn) (int64, error)
	CountUnsummarized(ctx context.Context) (int, error)
	CountUningestedToGraph(ctx context.Context) (int, error)
	CountAll(ctx context.Context) (int, error)
	FetchUnsummarized(ctx context.Context, limit int) ([]Turn, error)
	FetchUningested(ctx context.Context, limit int) ([]Turn, error)
	GetSince(ctx context.Context, since time.Time, limit int) ([]Turn, error)
	Recent(ctx context.Context, limit int) ([]Turn, error)

	// ClaimForGraphBatch atomically assigns up to limit of the oldest
	// uningested turns to a freshly created batch row and returns both
	// (spec.md §4.5 exactly-once invariant).
	ClaimForGraphBatch(ctx context.Context, channels []string, limit int) (Batch, []Turn, error)
	// ReleaseFromBatch clears graphiti_batch_id for the given turns,
	// re-enqueuing them for a later tick (transient-error recovery).
	ReleaseFromBatch(ctx context.Context, turnIDs []int64) error

	// ResetIngestionMarkers nulls graphiti_batch_id for every turn and
	// deletes every batch record (spec.md §6 CLI surface,
	// reset_ingestion_markers).
	ResetIngestionMarkers(ctx context.Context) error
	// RepairIngestionMarkers nulls graphiti_batch_id for turns in
	// [startID, endID] (spec.md §4.5 repair tool for provider swaps),
	// returning how many marked turns it cleared.
	RepairIngestionMarkers(ctx context.Context, startID, endID int64) (int, error)
	// CountMarkedInRange reports how many turns in [startID, endID] currently
	// carry a non-null graphiti_batch_id, without modifying anything — the
	// repair tool's dry-run count.
	CountMarkedInRange(ctx context.Context, startID, endID int64) (int, error)
}

// SummaryStore is the summaries layer contract (spec.md §4.2). Its recall
// methods are named RecentSummaries/SearchSummaries (rather than
// Recent/Search) so Store can embed both TurnStore and SummaryStore without
// a same-name, different-signature method collision.
type SummaryStore interface {
	CreateAndStoreSummary(ctx context.Context, text string, startID, endID int64, channels []string, t SummaryType) (Summary, error)
	RecentSummaries(ctx context.Context, limit int) ([]Summary, error)
	SearchSummaries(ctx context.Context, query string, limit int) ([]Summary, error)
}

// BatchStore manages graph-ingestion batch rows (spec.md §4.5, §3).
type BatchStore interface {
	MarkSucceeded(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errorCategory string) error
	Get(ctx context.Context, id int64) (Batch, error)
	Stats(ctx context.Context) (GraphitiStats, error)
}

// TraceStore logs the append-only observability trail (spec.md §3, §4.8).
type TraceStore interface {
	Log(ctx context.Context, e TraceEvent) error
}

// Store is the full relational-store capability.
type Store interface {
	TurnStore
	SummaryStore
	BatchStore
	TraceStore

	Close()
}

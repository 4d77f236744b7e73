package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process fake Store for tests, mirroring manifold's
// databases.NewMemoryGraph/NewMemoryVector in-memory-fake idiom.
type Memory struct {
	mu        sync.Mutex
	turns     []Turn
	summaries []Summary
	batches   []Batch
	traces    []TraceEvent
	nextTurn  int64
	nextSumm  int64
	nextBatch int64
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Close() {}

func (m *Memory) Store(ctx context.Context, t Turn) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ExternalID != nil && *t.ExternalID != "" {
		for _, existing := range m.turns {
			if existing.ExternalID != nil && *existing.ExternalID == *t.ExternalID &&
				samePtr(existing.SessionID, t.SessionID) {
				return existing.ID, nil
			}
		}
	}
	m.nextTurn++
	t.ID = m.nextTurn
	t.CreatedAt = time.Now()
	m.turns = append(m.turns, t)
	return t.ID, nil
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *Memory) CountUnsummarized(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.turns {
		if t.SummaryID == nil && len(t.Content) >= 10 {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountUningestedToGraph(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.turns {
		if t.GraphitiBatchID == nil {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns), nil
}

func (m *Memory) FetchUnsummarized(ctx context.Context, limit int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Turn
	for _, t := range m.turns {
		if t.SummaryID == nil && len(t.Content) >= 10 {
			out = append(out, t)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) FetchUningested(ctx context.Context, limit int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Turn
	for _, t := range m.turns {
		if t.GraphitiBatchID == nil {
			out = append(out, t)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) GetSince(ctx context.Context, since time.Time, limit int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Turn
	for _, t := range m.turns {
		if !t.CreatedAt.Before(since) {
			out = append(out, t)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) Recent(ctx context.Context, limit int) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.turns)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Turn, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.turns[n-1-i]
	}
	return out, nil
}

func (m *Memory) ClaimForGraphBatch(ctx context.Context, channels []string, limit int) (Batch, []Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []Turn
	ids := make(map[int64]bool)
	for i := range m.turns {
		if m.turns[i].GraphitiBatchID == nil {
			claimed = append(claimed, m.turns[i])
			ids[m.turns[i].ID] = true
			if limit > 0 && len(claimed) >= limit {
				break
			}
		}
	}
	if len(claimed) == 0 {
		return Batch{}, nil, nil
	}
	m.nextBatch++
	b := Batch{ID: m.nextBatch, CreatedAt: time.Now(), Channels: channels, Status: BatchInFlight}
	for _, t := range claimed {
		b.TurnIDs = append(b.TurnIDs, t.ID)
	}
	b.TurnIDRange = fmt.Sprintf("%d-%d", claimed[0].ID, claimed[len(claimed)-1].ID)
	m.batches = append(m.batches, b)
	for i := range m.turns {
		if ids[m.turns[i].ID] {
			bid := b.ID
			m.turns[i].GraphitiBatchID = &bid
		}
	}
	return b, claimed, nil
}

func (m *Memory) ReleaseFromBatch(ctx context.Context, turnIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(turnIDs))
	for _, id := range turnIDs {
		want[id] = true
	}
	for i := range m.turns {
		if want[m.turns[i].ID] {
			m.turns[i].GraphitiBatchID = nil
		}
	}
	return nil
}

func (m *Memory) ResetIngestionMarkers(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.turns {
		m.turns[i].GraphitiBatchID = nil
	}
	m.batches = nil
	return nil
}

func (m *Memory) RepairIngestionMarkers(ctx context.Context, startID, endID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.turns {
		if m.turns[i].ID >= startID && m.turns[i].ID <= endID && m.turns[i].GraphitiBatchID != nil {
			m.turns[i].GraphitiBatchID = nil
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountMarkedInRange(ctx context.Context, startID, endID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.turns {
		if t.ID >= startID && t.ID <= endID && t.GraphitiBatchID != nil {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateAndStoreSummary(ctx context.Context, text string, startID, endID int64, channels []string, t SummaryType) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if endID < startID {
		return Summary{}, ErrInvalidRange
	}
	count := 0
	for _, turn := range m.turns {
		if turn.ID >= startID && turn.ID <= endID {
			if turn.SummaryID != nil {
				return Summary{}, ErrInvalidRange
			}
			count++
		}
	}
	if count == 0 {
		return Summary{}, ErrInvalidRange
	}
	m.nextSumm++
	s := Summary{ID: m.nextSumm, SummaryText: text, StartTurnID: startID, EndTurnID: endID, MessageCount: count, Channels: channels, SummaryType: t, CreatedAt: time.Now()}
	m.summaries = append(m.summaries, s)
	for i := range m.turns {
		if m.turns[i].ID >= startID && m.turns[i].ID <= endID {
			sid := s.ID
			m.turns[i].SummaryID = &sid
		}
	}
	return s, nil
}

func (m *Memory) RecentSummaries(ctx context.Context, limit int) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.summaries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Summary, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.summaries[n-1-i]
	}
	return out, nil
}

func (m *Memory) SearchSummaries(ctx context.Context, query string, limit int) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(query)
	var out []Summary
	for i := len(m.summaries) - 1; i >= 0; i-- {
		s := m.summaries[i]
		if strings.Contains(strings.ToLower(s.SummaryText), q) {
			out = append(out, s)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkSucceeded(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.batches {
		if m.batches[i].ID == id {
			m.batches[i].Status = BatchSucceeded
			m.batches[i].ErrorCategory = ""
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) MarkFailed(ctx context.Context, id int64, errorCategory string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *Batch
	for i := range m.batches {
		if m.batches[i].ID == id {
			target = &m.batches[i]
			break
		}
	}
	if target == nil {
		return ErrNotFound
	}
	target.Status = BatchFailed
	target.ErrorCategory = errorCategory
	for i := range m.turns {
		if m.turns[i].GraphitiBatchID != nil && *m.turns[i].GraphitiBatchID == id {
			m.turns[i].GraphitiBatchID = nil
		}
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, id int64) (Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.ID == id {
			return b, nil
		}
	}
	return Batch{}, ErrNotFound
}

func (m *Memory) Stats(ctx context.Context) (GraphitiStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s GraphitiStats
	for _, b := range m.batches {
		switch b.Status {
		case BatchPending:
			s.Pending++
		case BatchInFlight:
			s.InFlight++
		case BatchSucceeded:
			s.Succeeded++
		case BatchFailed:
			s.Failed++
		}
	}
	return s, nil
}

func (m *Memory) Log(ctx context.Context, e TraceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.traces = append(m.traces, e)
	return nil
}

// Traces returns a snapshot of logged trace events, newest last — test-only
// accessor, not part of the Store interface.
func (m *Memory) Traces() []TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TraceEvent, len(m.traces))
	copy(out, m.traces)
	return out
}

// AllTurns exposes the raw slice, sorted by id, for assertions in tests.
func (m *Memory) AllTurns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var _ Store = (*Memory)(nil)

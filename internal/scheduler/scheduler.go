// Package scheduler implements the ingestion scheduler (spec.md §4.5): two
// independently ticking promotion pipelines that move turns from L1 raw
// capture into L2 summaries and L3 rich texture.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"pps/internal/config"
	"pps/internal/resilience"
	"pps/internal/store"
	"pps/internal/summaries"
	"pps/internal/texture"
)

// Summarizer produces a dense summary for a window of turn content, in the
// teacher's single-purpose LLM-capability style.
type Summarizer interface {
	Summarize(ctx context.Context, turns []store.Turn) (string, store.SummaryType, error)
}

// Scheduler runs the summarization and graph-ingestion pipelines on
// independent ticks (spec.md §4.5).
type Scheduler struct {
	turns      store.TurnStore
	batches    store.BatchStore
	summaries  *summaries.Layer
	texture    *texture.Layer
	summarizer Summarizer
	cfg        config.SchedulerConfig
	log        *logrus.Logger

	consecutiveErrs int
}

// New builds a Scheduler wired to the given layers.
func New(turns store.TurnStore, batches store.BatchStore, sumLayer *summaries.Layer, texLayer *texture.Layer, summarizer Summarizer, cfg config.SchedulerConfig, log *logrus.Logger) *Scheduler {
	return &Scheduler{turns: turns, batches: batches, summaries: sumLayer, texture: texLayer, summarizer: summarizer, cfg: cfg, log: log}
}

// Run blocks, driving both pipelines on their configured ticks until ctx is
// cancelled. Each pipeline halts itself (but not the other) after
// MaxConsecutiveErrs consecutive tick failures, per spec.md §9's "scheduler
// self-suspends a pipeline after repeated permanent failures" design note.
func (s *Scheduler) Run(ctx context.Context) {
	go s.runTicker(ctx, "summarize", s.cfg.SummarizeTick, s.SummarizeTick)
	go s.runTicker(ctx, "graph", s.cfg.GraphTick, s.GraphTick)
	<-ctx.Done()
}

func (s *Scheduler) runTicker(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	errs := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := tick(ctx); err != nil {
				errs++
				s.log.WithError(err).WithField("pipeline", name).WithField("consecutive_errors", errs).Warn("scheduler tick failed")
				if errs >= s.cfg.MaxConsecutiveErrs {
					s.log.WithField("pipeline", name).Error("suspending pipeline after repeated failures")
					return
				}
				continue
			}
			errs = 0
		}
	}
}

// SummarizeTick drains the L1→L2 backlog down to the configured threshold,
// one batch of up to SummarizeBatch turns per call, up to MaxBatchesPerTick
// batches (spec.md §4.5).
func (s *Scheduler) SummarizeTick(ctx context.Context) error {
	for i := 0; i < s.cfg.MaxBatchesPerTick; i++ {
		backlog, err := s.turns.CountUnsummarized(ctx)
		if err != nil {
			return fmt.Errorf("count unsummarized: %w", err)
		}
		if backlog < s.cfg.SummarizeThreshold {
			return nil
		}
		if err := s.summarizeOneBatch(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) summarizeOneBatch(ctx context.Context) error {
	turns, err := s.turns.FetchUnsummarized(ctx, s.cfg.SummarizeBatch)
	if err != nil {
		return fmt.Errorf("fetch unsummarized: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	text, t, err := s.summarizer.Summarize(ctx, turns)
	if err != nil {
		return resilience.Wrap(resilience.Classify(err), fmt.Errorf("summarize: %w", err))
	}

	channelSet := map[string]bool{}
	var channels []string
	for _, turn := range turns {
		if !channelSet[turn.Channel] {
			channelSet[turn.Channel] = true
			channels = append(channels, turn.Channel)
		}
	}

	_, err = s.summaries.CreateAndStoreSummary(ctx, text, turns[0].ID, turns[len(turns)-1].ID, channels, t)
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	return nil
}

// GraphTick drains the L1→L3 backlog in batches bounded by GraphConcurrency,
// respecting InterBatchSleep between batches (spec.md §4.5).
func (s *Scheduler) GraphTick(ctx context.Context) error {
	for i := 0; i < s.cfg.MaxBatchesPerTick; i++ {
		backlog, err := s.turns.CountUningestedToGraph(ctx)
		if err != nil {
			return fmt.Errorf("count uningested: %w", err)
		}
		if backlog < s.cfg.GraphThreshold {
			return nil
		}
		if err := s.graphOneBatch(ctx); err != nil {
			return err
		}
		if i < s.cfg.MaxBatchesPerTick-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.InterBatchSleep):
			}
		}
	}
	return nil
}

func (s *Scheduler) graphOneBatch(ctx context.Context) error {
	_, _, _, err := s.IngestBatch(ctx, s.cfg.GraphBatch)
	return err
}

// IngestBatch claims up to batchSize uningested turns and runs rich-texture
// ingestion over them, with the same batch state machine the tick-driven
// pipeline uses. Exposed for the on-demand ingest_batch_to_graphiti RPC
// endpoint (spec.md §4.8), which must return {ingested, failed, remaining}
// even on an empty backlog (spec.md §8 boundary behavior).
func (s *Scheduler) IngestBatch(ctx context.Context, batchSize int) (ingested, failed, remaining int, err error) {
	batch, turns, err := s.turns.ClaimForGraphBatch(ctx, nil, batchSize)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("claim graph batch: %w", err)
	}
	if len(turns) == 0 {
		remaining, err = s.turns.CountUningestedToGraph(ctx)
		return 0, 0, remaining, err
	}

	sem := make(chan struct{}, maxInt(1, s.cfg.GraphConcurrency))
	type outcome struct {
		turnID int64
		err    error
	}
	results := make(chan outcome, len(turns))
	for _, t := range turns {
		t := t
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			meta := texture.Metadata{Channel: t.Channel, Role: roleOf(t), Speaker: t.AuthorName, Timestamp: t.CreatedAt}
			_, err := s.texture.Ingest(ctx, t.Content, meta)
			results <- outcome{turnID: t.ID, err: err}
		}()
	}

	var firstTransient error
	var permanentFailures []int64
	for range turns {
		o := <-results
		if o.err == nil {
			continue
		}
		kind := resilience.Classify(o.err)
		if kind.Transient() {
			if firstTransient == nil {
				firstTransient = o.err
			}
		} else {
			permanentFailures = append(permanentFailures, o.turnID)
		}
	}

	if firstTransient != nil {
		if err := s.turns.ReleaseFromBatch(ctx, turnIDs(turns)); err != nil {
			return 0, 0, 0, fmt.Errorf("release batch after transient error: %w", err)
		}
		if err := s.batches.MarkFailed(ctx, batch.ID, string(resilience.Classify(firstTransient))); err != nil {
			return 0, 0, 0, err
		}
		remaining, rerr := s.turns.CountUningestedToGraph(ctx)
		return 0, len(turns), remaining, rerr
	}

	// Permanent per-item failures revert to uningested individually while the
	// batch itself still succeeds (spec.md §4.5 "partial -> succeeded").
	if len(permanentFailures) > 0 {
		if err := s.turns.ReleaseFromBatch(ctx, permanentFailures); err != nil {
			return 0, 0, 0, fmt.Errorf("release permanently-failed turns: %w", err)
		}
	}
	if err := s.batches.MarkSucceeded(ctx, batch.ID); err != nil {
		return 0, 0, 0, err
	}
	remaining, rerr := s.turns.CountUningestedToGraph(ctx)
	return len(turns) - len(permanentFailures), len(permanentFailures), remaining, rerr
}

func roleOf(t store.Turn) string {
	if t.IsOwnUtterance {
		return "assistant"
	}
	return "user"
}

func turnIDs(turns []store.Turn) []int64 {
	ids := make([]int64, len(turns))
	for i, t := range turns {
		ids[i] = t.ID
	}
	return ids
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

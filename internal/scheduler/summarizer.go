package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pps/internal/llmcap"
	"pps/internal/store"
)

// LLMSummarizer produces a dense summary of a turn window via an Invoker,
// classifying the turn channels into a SummaryType heuristically (spec.md
// §4.2 summary_type).
type LLMSummarizer struct {
	llm   llmcap.Invoker
	model string
}

// NewLLMSummarizer builds a Summarizer backed by llm.
func NewLLMSummarizer(llm llmcap.Invoker, model string) *LLMSummarizer {
	return &LLMSummarizer{llm: llm, model: model}
}

const summarizePrompt = `Summarize the following conversation turns into a
single dense paragraph capturing who said what and why it matters. Do not
include a preamble.

%s`

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, turns []store.Turn) (string, store.SummaryType, error) {
	if len(turns) == 0 {
		return "", "", fmt.Errorf("summarize: no turns")
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[%s] %s: %s\n", t.Channel, t.AuthorName, t.Content)
	}
	prompt := fmt.Sprintf(summarizePrompt, b.String())

	text, err := s.llm.InvokeModel(ctx, prompt, s.model, 2*time.Minute)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(text), classifyType(turns), nil
}

func classifyType(turns []store.Turn) store.SummaryType {
	channels := map[string]bool{}
	for _, t := range turns {
		channels[t.Channel] = true
	}
	if len(channels) > 1 {
		return store.SummaryMixed
	}
	for c := range channels {
		switch c {
		case "terminal", "code", "ide":
			return store.SummaryTechnical
		case "chat", "social":
			return store.SummarySocial
		}
	}
	return store.SummaryWork
}

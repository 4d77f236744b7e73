// Package texture implements the rich-texture / graph layer (L3, C7):
// turns and summaries become typed graph edges via LLM-driven entity/edge
// extraction, with entity-centric search (spec.md §4.3).
package texture

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pps/internal/graphclient"
	"pps/internal/llmcap"
	"pps/internal/resilience"
)

// Metadata must accompany every ingested episode (spec.md §4.3).
type Metadata struct {
	Channel   string
	Role      string // "user" | "assistant"
	Speaker   string
	Timestamp time.Time
}

// Layer is the rich-texture capability, stabilizing the extraction LLM call
// per spec.md §4.3 ("The layer is responsible for stabilising that LLM
// call"), grounded on manifold's internal/sefii.Engine ingest/search shape
// and execWithRetry idiom (see internal/resilience).
type Layer struct {
	graph      graphclient.Client
	llm        llmcap.Invoker
	entityName string
	model      string
}

// New builds a texture Layer scoped to entityName (the graph's group_id).
func New(graph graphclient.Client, llm llmcap.Invoker, entityName, model string) *Layer {
	return &Layer{graph: graph, llm: llm, entityName: entityName, model: model}
}

type extraction struct {
	Entities []struct {
		Name    string   `json:"name"`
		Labels  []string `json:"labels"`
		Summary string   `json:"summary"`
	} `json:"entities"`
	Edges []struct {
		Subject   string `json:"subject"`
		Predicate string `json:"predicate"`
		Object    string `json:"object"`
		Fact      string `json:"fact"`
	} `json:"edges"`
}

const extractionPrompt = `Extract named entities and typed relationships from the
episode below. Respond with ONLY a JSON object of the shape
{"entities":[{"name":"","labels":[""],"summary":""}],
 "edges":[{"subject":"","predicate":"","object":"","fact":""}]}.
Use concise lowercase snake_case predicates. If nothing is extractable,
respond with {"entities":[],"edges":[]}.

Channel: %s
Speaker: %s (%s)

Episode:
%s`

// Ingest converts text into an episode, asks the configured LLM to extract
// entities and edges, and upserts them into the graph client. It returns
// false only when extraction produced nothing usable (not an error); errors
// are classified (spec.md §7) so the scheduler can decide whether to retry.
func (l *Layer) Ingest(ctx context.Context, text string, meta Metadata) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, resilience.Wrap(resilience.KindInvalidInput, fmt.Errorf("texture: empty episode text"))
	}
	prompt := fmt.Sprintf(extractionPrompt, meta.Channel, meta.Speaker, meta.Role, text)

	var raw string
	err := resilience.WithRetry(ctx, resilience.DefaultPolicy, func(ctx context.Context) error {
		out, err := l.llm.InvokeModel(ctx, prompt, l.model, 3*time.Minute)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return false, resilience.Wrap(resilience.Classify(err), fmt.Errorf("extraction call: %w", err))
	}

	var ex extraction
	if err := json.Unmarshal([]byte(extractJSON(raw)), &ex); err != nil {
		return false, resilience.Wrap(resilience.KindGraphEngine, fmt.Errorf("parse extraction output: %w", err))
	}
	if len(ex.Entities) == 0 && len(ex.Edges) == 0 {
		return false, nil
	}

	validAt := meta.Timestamp
	if validAt.IsZero() {
		validAt = time.Now()
	}

	for _, e := range ex.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		if err := l.graph.UpsertNode(ctx, graphclient.Node{Name: e.Name, GroupID: l.entityName, Labels: e.Labels, Summary: e.Summary}); err != nil {
			return false, resilience.Wrap(resilience.KindGraphEngine, fmt.Errorf("upsert node %q: %w", e.Name, err))
		}
	}
	for _, e := range ex.Edges {
		if strings.TrimSpace(e.Subject) == "" || strings.TrimSpace(e.Object) == "" {
			continue
		}
		edge := graphclient.Edge{
			UUID:        uuid.NewString(),
			SubjectName: e.Subject,
			Predicate:   e.Predicate,
			ObjectName:  e.Object,
			FactText:    e.Fact,
			ValidAt:     validAt,
			CreatedAt:   time.Now(),
			GroupID:     l.entityName,
			SourceLabels: []string{"Entity"},
			TargetLabels: []string{"Entity"},
		}
		if err := l.graph.UpsertEdge(ctx, edge); err != nil {
			return false, resilience.Wrap(resilience.KindGraphEngine, fmt.Errorf("upsert edge %s-%s->%s: %w", e.Subject, e.Predicate, e.Object, err))
		}
	}
	return true, nil
}

// extractJSON trims conversational wrapper text a model may add around the
// requested JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "{}"
	}
	return s[start : end+1]
}

// Search delegates to the graph client's entity-centric search contract
// (spec.md §4.3), defaulting CenterEntityName to this layer's entity.
func (l *Layer) Search(ctx context.Context, query string, opts graphclient.SearchOptions) ([]graphclient.Item, error) {
	if opts.CenterEntityName == "" {
		opts.CenterEntityName = l.entityName
	}
	return l.graph.Search(ctx, l.entityName, query, opts)
}

// DeleteEdge removes a single edge (spec.md §4.3).
func (l *Layer) DeleteEdge(ctx context.Context, edgeUUID string) error {
	return l.graph.DeleteEdge(ctx, l.entityName, edgeUUID)
}

// Explore returns a breadth-limited neighborhood restricted to this layer's
// entity group (spec.md §4.3).
func (l *Layer) Explore(ctx context.Context, entityName string, depth int) ([]graphclient.Item, error) {
	return l.graph.Explore(ctx, l.entityName, entityName, depth)
}

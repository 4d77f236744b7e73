// Package recall implements the ambient-recall engine (spec.md §4.7): a
// single operation that merges the rich-texture, summaries, word-photo, and
// tech-RAG layers into one formatted context block, either via a
// content-free startup manifest or a concurrent cross-layer search.
package recall

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pps/internal/config"
	"pps/internal/curated"
	"pps/internal/graphclient"
	"pps/internal/store"
	"pps/internal/summaries"
	"pps/internal/texture"
)

const startupContext = "startup"

// startup-mode priority bands: fixed composition order (manifest, crystals,
// summaries, recent turns), independent of recency (spec.md §4.7 mode 1,
// SPEC_FULL.md §11.3).
const (
	priorityManifest    = 3.0
	priorityCrystals    = 2.0
	priorityRecentTurns = 0.1
)

// Item is one ranked, merged result (spec.md §4.7 "results[]").
type Item struct {
	Layer     string
	ID        string // dedup key: doc_id or edge uuid, scoped to Layer
	Text      string
	Score     float64 // normalized within its source layer, [0,1]
	Priority  float64 // fixed per-layer band weight
	CreatedAt time.Time
}

// MemoryHealth surfaces backlog counts so a caller can judge staleness
// (spec.md §4.7 "memory_health").
type MemoryHealth struct {
	UnsummarizedTurns int
	UningestedTurns   int
}

// Result is ambient_recall's return shape (spec.md §4.7).
type Result struct {
	FormattedContext string
	Results          []Item
	Clock            time.Time
	MemoryHealth     MemoryHealth
}

// Options configures one ambient_recall call (spec.md §4.7).
type Options struct {
	Channel       string
	LimitPerLayer int
}

// Engine composes every retrieval layer behind the single ambient_recall
// operation.
type Engine struct {
	texture     *texture.Layer
	summaries   *summaries.Layer
	wordPhotos  *curated.Store
	techRAG     *curated.Store
	turns       store.TurnStore
	crystalsDir string
	cfg         config.RecallConfig
}

// New builds an Engine. wordPhotos/techRAG may be nil if those collections
// are not configured for this entity; crystalsDir may be empty, in which
// case startup mode reports zero crystals rather than erroring.
func New(tex *texture.Layer, sum *summaries.Layer, wordPhotos, techRAG *curated.Store, turns store.TurnStore, crystalsDir string, cfg config.RecallConfig) *Engine {
	return &Engine{texture: tex, summaries: sum, wordPhotos: wordPhotos, techRAG: techRAG, turns: turns, crystalsDir: crystalsDir, cfg: cfg}
}

// AmbientRecall is the single public operation (spec.md §4.7). It is
// read-only: aborting ctx mid-call leaves no store in an inconsistent state.
func (e *Engine) AmbientRecall(ctx context.Context, recallContext string, opts Options) (Result, error) {
	limit := opts.LimitPerLayer
	if limit <= 0 {
		limit = e.cfg.LimitPerLayer
	}

	health, err := e.memoryHealth(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("memory health: %w", err)
	}

	isStartup := strings.TrimSpace(recallContext) == startupContext

	var sections []section
	if isStartup {
		sections, err = e.startup(ctx, limit)
	} else {
		sections, err = e.contextual(ctx, recallContext, limit)
	}
	if err != nil {
		return Result{}, err
	}

	var merged []Item
	if isStartup {
		merged = mergeSectionsSequential(sections, limit)
	} else {
		merged = mergeSections(sections, limit)
	}
	formatted := render(sections, merged, health)
	if e.cfg.MaxContextBytes > 0 && len(formatted) > e.cfg.MaxContextBytes {
		formatted = truncateContext(formatted, e.cfg.MaxContextBytes)
	}

	return Result{
		FormattedContext: formatted,
		Results:          merged,
		Clock:            nowFunc(),
		MemoryHealth:     health,
	}, nil
}

func (e *Engine) memoryHealth(ctx context.Context) (MemoryHealth, error) {
	if e.turns == nil {
		return MemoryHealth{}, nil
	}
	unsummarized, err := e.turns.CountUnsummarized(ctx)
	if err != nil {
		return MemoryHealth{}, err
	}
	uningested, err := e.turns.CountUningestedToGraph(ctx)
	if err != nil {
		return MemoryHealth{}, err
	}
	return MemoryHealth{UnsummarizedTurns: unsummarized, UningestedTurns: uningested}, nil
}

// section is one layer's raw contribution before cross-layer merge.
type section struct {
	name  string
	items []Item
}

// startup builds the identity/continuity manifest (spec.md §4.7 mode 1), in
// the fixed composition order manifest -> crystals -> summaries -> recent
// turns (SPEC_FULL.md §11.3), skipping semantic search entirely.
func (e *Engine) startup(ctx context.Context, limit int) ([]section, error) {
	var sections []section

	crystalNames, err := e.latestCrystalNames(e.cfg.StartupCrystals)
	if err != nil {
		return nil, fmt.Errorf("startup list crystals: %w", err)
	}

	manifest := e.manifestLine(ctx, len(crystalNames))
	sections = append(sections, section{name: "manifest", items: []Item{
		{Layer: "manifest", ID: "manifest", Text: manifest, Score: 1, Priority: priorityManifest, CreatedAt: nowFunc()},
	}})

	if len(crystalNames) > 0 {
		items := make([]Item, 0, len(crystalNames))
		for _, name := range crystalNames {
			content, err := os.ReadFile(filepath.Join(e.crystalsDir, name))
			if err != nil {
				continue
			}
			items = append(items, Item{Layer: "crystals", ID: name, Text: strings.TrimSpace(string(content)), Score: 1, Priority: priorityCrystals, CreatedAt: nowFunc()})
		}
		sections = append(sections, section{name: "crystals", items: items})
	}

	if e.summaries != nil {
		k := e.cfg.StartupSummaries
		recent, err := e.summaries.Recent(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("startup recent summaries: %w", err)
		}
		items := make([]Item, 0, len(recent))
		for _, s := range recent {
			items = append(items, Item{Layer: "summaries", ID: fmt.Sprintf("%d", s.ID), Text: s.SummaryText, Score: 1, Priority: e.cfg.WeightSummaries, CreatedAt: s.CreatedAt})
		}
		sections = append(sections, section{name: "summaries", items: items})
	}

	if e.turns != nil {
		backlog, err := e.turns.CountUnsummarized(ctx)
		if err != nil {
			return nil, fmt.Errorf("startup backlog: %w", err)
		}
		var items []Item
		if backlog > e.cfg.BacklogDisplayCap {
			items = append(items, Item{Layer: "recent_turns", ID: "backlog_count", Text: fmt.Sprintf("Recent turns: %d (too many to list)", backlog), Score: 1, Priority: priorityRecentTurns, CreatedAt: nowFunc()})
		} else {
			recent, err := e.turns.Recent(ctx, e.cfg.StartupRecentTurns)
			if err != nil {
				return nil, fmt.Errorf("startup recent turns: %w", err)
			}
			for _, t := range recent {
				items = append(items, Item{Layer: "recent_turns", ID: fmt.Sprintf("%d", t.ID), Text: fmt.Sprintf("[%s] %s: %s", t.Channel, t.AuthorName, t.Content), Score: 1, Priority: priorityRecentTurns, CreatedAt: t.CreatedAt})
			}
		}
		sections = append(sections, section{name: "recent_turns", items: items})
	}

	return sections, nil
}

// manifestLine is the short availability listing spec.md §4.7 mode 1 (a)
// calls for: crystals, word-photos, summaries, and recent turns.
func (e *Engine) manifestLine(ctx context.Context, crystalCount int) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%d crystal(s)", crystalCount))
	parts = append(parts, fmt.Sprintf("word-photos %s", availability(e.wordPhotos != nil)))
	if e.summaries != nil {
		parts = append(parts, "summaries available")
	} else {
		parts = append(parts, "summaries unavailable")
	}
	if e.turns != nil {
		if backlog, err := e.turns.CountUnsummarized(ctx); err == nil {
			parts = append(parts, fmt.Sprintf("%d turn(s) pending summarization", backlog))
		}
	}
	return "Available: " + strings.Join(parts, ", ")
}

func availability(ok bool) string {
	if ok {
		return "indexed"
	}
	return "not configured"
}

// latestCrystalNames returns up to n crystal filenames, most recent first
// (lexicographic descending, matching internal/rpc's get_crystals listing —
// crystal files are numbered so this also orders by recency). A missing or
// unconfigured crystals directory yields an empty, non-error result.
func (e *Engine) latestCrystalNames(n int) ([]string, error) {
	if e.crystalsDir == "" || n <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(e.crystalsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasSuffix(ent.Name(), ".md") {
			names = append(names, ent.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > n {
		names = names[:n]
	}
	return names, nil
}

// contextual runs the four retrieval layers concurrently (spec.md §4.7
// mode 2).
func (e *Engine) contextual(ctx context.Context, query string, limit int) ([]section, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sections []section
		firstErr error
	)

	add := func(name string, items []Item, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
			return
		}
		sections = append(sections, section{name: name, items: normalizeScores(items)})
	}

	if e.texture != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.texture.Search(ctx, query, graphclient.SearchOptions{LimitEdges: limit, LimitNodes: limit})
			items := make([]Item, 0, len(results))
			for _, r := range results {
				items = append(items, e.graphItemToRecall(r))
			}
			add("graph", items, err)
		}()
	}

	if e.summaries != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.summaries.Search(ctx, query, limit)
			items := make([]Item, 0, len(results))
			for _, s := range results {
				items = append(items, Item{Layer: "summaries", ID: fmt.Sprintf("%d", s.ID), Text: s.SummaryText, Score: 1, Priority: e.cfg.WeightSummaries, CreatedAt: s.CreatedAt})
			}
			add("summaries", items, err)
		}()
	}

	if e.wordPhotos != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.wordPhotos.Search(ctx, query, limit)
			items := make([]Item, 0, len(results))
			for _, d := range results {
				items = append(items, Item{Layer: "word_photos", ID: d.DocID, Text: d.Content, Score: d.Score, Priority: e.cfg.WeightCurated, CreatedAt: time.Time{}})
			}
			add("word_photos", items, err)
		}()
	}

	if e.techRAG != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.techRAG.Search(ctx, query, limit)
			items := make([]Item, 0, len(results))
			for _, d := range results {
				items = append(items, Item{Layer: "tech_rag", ID: d.DocID, Text: d.Content, Score: d.Score, Priority: e.cfg.WeightCurated, CreatedAt: time.Time{}})
			}
			add("tech_rag", items, err)
		}()
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return sections, nil
}

func (e *Engine) graphItemToRecall(it graphclient.Item) Item {
	switch it.Kind {
	case graphclient.ItemEdge:
		return Item{Layer: "graph", ID: it.Edge.UUID, Text: it.Edge.FactText, Score: it.Relevance, Priority: e.cfg.WeightGraph, CreatedAt: it.Edge.CreatedAt}
	default:
		return Item{Layer: "graph", ID: it.Node.Name, Text: it.Node.Summary, Score: it.Relevance, Priority: e.cfg.WeightGraph, CreatedAt: time.Time{}}
	}
}

// normalizeScores rescales a layer's raw scores into [0,1] by its own max,
// per spec.md §4.7 "normalize scores within each layer".
func normalizeScores(items []Item) []Item {
	max := 0.0
	for _, it := range items {
		if it.Score > max {
			max = it.Score
		}
	}
	if max <= 0 {
		return items
	}
	out := make([]Item, len(items))
	for i, it := range items {
		it.Score = it.Score / max
		out[i] = it
	}
	return out
}

// mergeSections dedupes by (layer, id), caps per layer at limit, and applies
// the deterministic tie-break (priority desc, score desc, created_at desc).
func mergeSections(sections []section, limit int) []Item {
	seen := map[string]bool{}
	var out []Item
	for _, sec := range sections {
		items := append([]Item(nil), sec.items...)
		sort.Slice(items, func(i, j int) bool { return tieBreakLess(items[j], items[i]) })
		count := 0
		for _, it := range items {
			if limit > 0 && count >= limit {
				break
			}
			key := it.Layer + "\x00" + it.ID
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, it)
			count++
		}
	}
	sort.Slice(out, func(i, j int) bool { return tieBreakLess(out[j], out[i]) })
	return out
}

// mergeSectionsSequential dedupes by (layer, id) and caps per layer at
// limit, like mergeSections, but preserves the sections' original append
// order across the output instead of a final cross-section resort — startup
// mode's manifest/crystals/summaries/turns order is fixed, not priority- or
// recency-driven (spec.md §4.7 mode 1, SPEC_FULL.md §11.3).
func mergeSectionsSequential(sections []section, limit int) []Item {
	seen := map[string]bool{}
	var out []Item
	for _, sec := range sections {
		items := append([]Item(nil), sec.items...)
		sort.Slice(items, func(i, j int) bool { return tieBreakLess(items[j], items[i]) })
		count := 0
		for _, it := range items {
			if limit > 0 && count >= limit {
				break
			}
			key := it.Layer + "\x00" + it.ID
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, it)
			count++
		}
	}
	return out
}

// tieBreakLess reports whether a sorts before b under spec.md §4.7's
// deterministic ordering (priority desc, score desc, created_at desc) —
// named so mergeSections's two call sites (both descending) read the same.
func tieBreakLess(a, b Item) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func render(sections []section, merged []Item, health MemoryHealth) string {
	var b strings.Builder
	fmt.Fprintln(&b, "=== Ambient Recall ===")
	fmt.Fprintf(&b, "time: %s\n", nowFunc().Format(time.RFC3339))
	fmt.Fprintf(&b, "memory_health: unsummarized=%d uningested=%d\n", health.UnsummarizedTurns, health.UningestedTurns)

	byLayer := map[string][]Item{}
	var order []string
	for _, it := range merged {
		if _, ok := byLayer[it.Layer]; !ok {
			order = append(order, it.Layer)
		}
		byLayer[it.Layer] = append(byLayer[it.Layer], it)
	}
	for _, layer := range order {
		fmt.Fprintf(&b, "\n[%s]\n", layer)
		for _, it := range byLayer[layer] {
			fmt.Fprintf(&b, "- %s\n", it.Text)
		}
	}
	return b.String()
}

func truncateContext(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	marker := "\n...[truncated]"
	cut := maxBytes - len(marker)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + marker
}

// nowFunc is a seam for tests; production uses wall-clock time.
var nowFunc = time.Now

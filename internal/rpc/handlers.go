package rpc

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"pps/internal/capture"
	"pps/internal/graphclient"
	"pps/internal/recall"
	"pps/internal/resilience"
	"pps/internal/store"
)

func (s *Server) fail(c echo.Context, err error) error {
	kind := resilience.Classify(err)
	status := http.StatusInternalServerError
	if kind == resilience.KindInvalidInput {
		status = http.StatusBadRequest
	}
	return jsonError(c, status, string(kind), err.Error())
}

// --- ambient_recall ---------------------------------------------------

type ambientRecallRequest struct {
	envelope
	Context       string `json:"context"`
	Channel       string `json:"channel"`
	LimitPerLayer int    `json:"limit_per_layer"`
}

func (s *Server) handleAmbientRecall(c echo.Context) error {
	var req ambientRecallRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.recall == nil {
		return s.unconfigured(c, "ambient recall")
	}
	result, err := s.recall.AmbientRecall(c.Request().Context(), req.Context, recall.Options{Channel: req.Channel, LimitPerLayer: req.LimitPerLayer})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":           true,
		"formatted_context": result.FormattedContext,
		"results":            result.Results,
		"clock":             result.Clock,
		"memory_health": map[string]int{
			"unsummarized": result.MemoryHealth.UnsummarizedTurns,
			"uningested":   result.MemoryHealth.UningestedTurns,
		},
	})
}

// --- store_message ------------------------------------------------------

type storeMessageRequest struct {
	envelope
	Content        string  `json:"content"`
	AuthorName     string  `json:"author_name"`
	Channel        string  `json:"channel"`
	IsOwnUtterance bool    `json:"is_own_utterance"`
	SessionID      *string `json:"session_id"`
	ExternalID     *string `json:"external_id"`
}

func (s *Server) handleStoreMessage(c echo.Context) error {
	var req storeMessageRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.capture == nil {
		return s.unconfigured(c, "raw capture")
	}
	meta := capture.Metadata{Channel: req.Channel, AuthorName: req.AuthorName, IsOwnUtterance: req.IsOwnUtterance}
	if req.SessionID != nil {
		meta.SessionID = *req.SessionID
	}
	if req.ExternalID != nil {
		meta.ExternalID = *req.ExternalID
	}
	id, err := s.capture.Store(c.Request().Context(), req.Content, meta)
	if err != nil {
		return s.fail(c, resilience.Wrap(resilience.KindInvalidInput, err))
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "id": id})
}

// --- summarize_messages / store_summary ---------------------------------

type summarizeMessagesRequest struct {
	envelope
	Limit int `json:"limit"`
}

func (s *Server) handleSummarizeMessages(c echo.Context) error {
	var req summarizeMessagesRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.turns == nil {
		return s.unconfigured(c, "raw capture")
	}
	turns, err := s.turns.FetchUnsummarized(c.Request().Context(), req.Limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "turns": turns})
}

type storeSummaryRequest struct {
	envelope
	SummaryText string   `json:"summary_text"`
	StartID     int64    `json:"start_id"`
	EndID       int64    `json:"end_id"`
	Channels    []string `json:"channels"`
	SummaryType string   `json:"summary_type"`
}

func (s *Server) handleStoreSummary(c echo.Context) error {
	var req storeSummaryRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.summaries == nil {
		return s.unconfigured(c, "summaries layer")
	}
	t := store.SummaryType(req.SummaryType)
	if t == "" {
		t = store.SummaryWork
	}
	summary, err := s.summaries.CreateAndStoreSummary(c.Request().Context(), req.SummaryText, req.StartID, req.EndID, req.Channels, t)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "summary": summary})
}

// --- get_crystals ---------------------------------------------------------

type getCrystalsRequest struct {
	envelope
	Count int `json:"count"`
}

func (s *Server) handleGetCrystals(c echo.Context) error {
	var req getCrystalsRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.entity == nil {
		return s.unconfigured(c, "entity directory")
	}
	entries, err := os.ReadDir(s.entity.CrystalsCurrentDir())
	if err != nil && !os.IsNotExist(err) {
		return s.fail(c, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if req.Count > 0 && len(names) > req.Count {
		names = names[:req.Count]
	}

	type crystal struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	crystals := make([]crystal, 0, len(names))
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(s.entity.CrystalsCurrentDir(), n))
		if err != nil {
			continue
		}
		crystals = append(crystals, crystal{Name: n, Content: string(b)})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "crystals": crystals})
}

// --- get_turns_since / get_turns_since_summary ---------------------------

type getTurnsSinceRequest struct {
	envelope
	Timestamp        time.Time `json:"timestamp"`
	Limit            int       `json:"limit"`
	IncludeSummaries bool      `json:"include_summaries"`
}

func (s *Server) handleGetTurnsSince(c echo.Context) error {
	var req getTurnsSinceRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.turns == nil {
		return s.unconfigured(c, "raw capture")
	}
	turns, err := s.turns.GetSince(c.Request().Context(), req.Timestamp, req.Limit)
	if err != nil {
		return s.fail(c, err)
	}
	resp := map[string]any{"success": true, "turns": turns}
	if req.IncludeSummaries && s.summaries != nil {
		recent, err := s.summaries.Recent(c.Request().Context(), req.Limit)
		if err == nil {
			resp["summaries"] = recent
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type getTurnsSinceSummaryRequest struct {
	envelope
	Limit    int `json:"limit"`
	Offset   int `json:"offset"`
	MinTurns int `json:"min_turns"`
}

func (s *Server) handleGetTurnsSinceSummary(c echo.Context) error {
	var req getTurnsSinceSummaryRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.summaries == nil {
		return s.unconfigured(c, "summaries layer")
	}
	limit := req.Limit + req.Offset
	if limit <= 0 {
		limit = req.Offset + 10
	}
	recent, err := s.summaries.Recent(c.Request().Context(), limit)
	if err != nil {
		return s.fail(c, err)
	}
	var out []store.Summary
	for i, summ := range recent {
		if i < req.Offset {
			continue
		}
		if summ.MessageCount < req.MinTurns {
			continue
		}
		out = append(out, summ)
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "summaries": out})
}

// --- graph ingestion endpoints --------------------------------------------

func (s *Server) handleGraphitiStats(c echo.Context) error {
	if s.batches == nil {
		return s.unconfigured(c, "batch store")
	}
	stats, err := s.batches.Stats(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "stats": stats})
}

type ingestBatchRequest struct {
	envelope
	BatchSize int `json:"batch_size"`
}

func (s *Server) handleIngestBatch(c echo.Context) error {
	var req ingestBatchRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.scheduler == nil {
		return s.unconfigured(c, "scheduler")
	}
	ingested, failed, remaining, err := s.scheduler.IngestBatch(c.Request().Context(), req.BatchSize)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "ingested": ingested, "failed": failed, "remaining": remaining})
}

type deleteEdgeRequest struct {
	envelope
	UUID string `json:"uuid"`
}

func (s *Server) handleDeleteEdge(c echo.Context) error {
	var req deleteEdgeRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.texture == nil {
		return s.unconfigured(c, "rich-texture layer")
	}
	if err := s.texture.DeleteEdge(c.Request().Context(), req.UUID); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

type textureSearchRequest struct {
	envelope
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) handleTextureSearch(c echo.Context) error {
	var req textureSearchRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.texture == nil {
		return s.unconfigured(c, "rich-texture layer")
	}
	items, err := s.texture.Search(c.Request().Context(), req.Query, graphclient.SearchOptions{LimitEdges: req.Limit, LimitNodes: req.Limit})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "results": items})
}

// --- agent_context / friction_search --------------------------------------

func (s *Server) handleAgentContext(c echo.Context) error {
	if s.recall == nil {
		return s.unconfigured(c, "ambient recall")
	}
	result, err := s.recall.AmbientRecall(c.Request().Context(), "startup", recall.Options{})
	if err != nil {
		return s.fail(c, err)
	}
	var lines []string
	for _, item := range result.Results {
		lines = append(lines, "- "+item.Text)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "compact_context": strings.Join(lines, "\n")})
}

type frictionSearchRequest struct {
	envelope
	Query       string `json:"query"`
	Limit       int    `json:"limit"`
	MinSeverity string `json:"min_severity"`
}

var severityRank = map[string]int{"low": 0, "medium": 1, "high": 2, "critical": 3}

func (s *Server) handleFrictionSearch(c echo.Context) error {
	var req frictionSearchRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.friction == nil {
		return c.JSON(http.StatusOK, map[string]any{"success": true, "results": []any{}})
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	docs, err := s.friction.Search(c.Request().Context(), req.Query, limit*3)
	if err != nil {
		return s.fail(c, err)
	}
	minRank := severityRank[strings.ToLower(req.MinSeverity)]

	type lesson struct {
		Lesson   string `json:"lesson"`
		Severity string `json:"severity"`
	}
	var results []lesson
	for _, d := range docs {
		sev := strings.ToLower(d.Metadata["severity"])
		if severityRank[sev] < minRank {
			continue
		}
		results = append(results, lesson{Lesson: d.Content, Severity: sev})
		if len(results) >= limit {
			break
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "results": results})
}

// --- pps_health ------------------------------------------------------------

func (s *Server) handlePPSHealth(c echo.Context) error {
	layers := map[string]map[string]any{}

	if s.turns != nil {
		unsummarized, err1 := s.turns.CountUnsummarized(c.Request().Context())
		uningested, err2 := s.turns.CountUningestedToGraph(c.Request().Context())
		layers["relational"] = map[string]any{"available": err1 == nil && err2 == nil, "unsummarized": unsummarized, "uningested": uningested}
	} else {
		layers["relational"] = map[string]any{"available": false, "message": "not configured"}
	}
	layers["graph"] = map[string]any{"available": s.texture != nil}
	layers["word_photos"] = map[string]any{"available": s.wordPhotos != nil}
	layers["tech_rag"] = map[string]any{"available": s.techRAG != nil}
	layers["friction"] = map[string]any{"available": s.friction != nil}

	status := "ok"
	for _, l := range layers {
		if available, ok := l["available"].(bool); ok && !available {
			status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"status": status, "layers": layers})
}

// --- acquire_lock / release_lock / lock_status ----------------------------
//
// Operational helpers backing the advisory project lock (SPEC_FULL.md
// §11.1); not part of the required endpoint list but wired since the data
// model already names the lock.

type acquireLockRequest struct {
	envelope
	Holder  string `json:"holder"`
	Context string `json:"context"`
}

func (s *Server) handleAcquireLock(c echo.Context) error {
	var req acquireLockRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.lock == nil {
		return s.unconfigured(c, "project lock")
	}
	if strings.TrimSpace(req.Holder) == "" {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "holder is required")
	}
	if err := s.lock.Acquire(req.Holder, req.Context); err != nil {
		return jsonError(c, http.StatusConflict, "lock_held", err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

type releaseLockRequest struct {
	envelope
	Holder string `json:"holder"`
}

func (s *Server) handleReleaseLock(c echo.Context) error {
	var req releaseLockRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid_input", "malformed request body")
	}
	if s.lock == nil {
		return s.unconfigured(c, "project lock")
	}
	if err := s.lock.Release(req.Holder); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLockStatus(c echo.Context) error {
	if s.lock == nil {
		return s.unconfigured(c, "project lock")
	}
	status, err := s.lock.Status()
	if err != nil {
		return s.fail(c, err)
	}
	if status == nil {
		return c.JSON(http.StatusOK, map[string]any{"success": true, "locked": false})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true, "locked": true,
		"locked_by": status.LockedBy, "locked_at": status.LockedAt, "context": status.Context,
	})
}

// unconfigured answers a call against a capability this entity's process
// was not wired with (spec.md §7 error shape; never a raw stack trace).
func (s *Server) unconfigured(c echo.Context, what string) error {
	return jsonError(c, http.StatusServiceUnavailable, "unclassified", what+" not configured for this entity")
}

// Package rpc implements the RPC/tool surface (spec.md §4.8): one HTTP POST
// endpoint per named operation, a shared request envelope, shared-secret
// auth, and a trace event logged for every call.
package rpc

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"pps/internal/capture"
	"pps/internal/curated"
	"pps/internal/entity"
	"pps/internal/entitylock"
	"pps/internal/recall"
	"pps/internal/scheduler"
	"pps/internal/store"
	"pps/internal/summaries"
	"pps/internal/texture"
	"pps/internal/trace"
)

// Server wires every layer capability behind the RPC surface.
type Server struct {
	entity     *entity.Entity
	turns      store.TurnStore
	capture    *capture.Layer
	summaries  *summaries.Layer
	texture    *texture.Layer
	batches    store.BatchStore
	scheduler  *scheduler.Scheduler
	recall     *recall.Engine
	wordPhotos *curated.Store
	techRAG    *curated.Store
	friction   *curated.Store
	traces     *trace.Writer
	lock       *entitylock.Manager
}

// Deps bundles Server's constructor arguments; fields may be nil when that
// capability is not configured for this entity.
type Deps struct {
	Entity     *entity.Entity
	Turns      store.TurnStore
	Capture    *capture.Layer
	Summaries  *summaries.Layer
	Texture    *texture.Layer
	Batches    store.BatchStore
	Scheduler  *scheduler.Scheduler
	Recall     *recall.Engine
	WordPhotos *curated.Store
	TechRAG    *curated.Store
	Friction   *curated.Store
	Traces     *trace.Writer
	Lock       *entitylock.Manager
}

// New builds a Server.
func New(d Deps) *Server {
	return &Server{
		entity: d.Entity, turns: d.Turns, capture: d.Capture, summaries: d.Summaries, texture: d.Texture,
		batches: d.Batches, scheduler: d.Scheduler, recall: d.Recall,
		wordPhotos: d.WordPhotos, techRAG: d.TechRAG, friction: d.Friction, traces: d.Traces,
		lock: d.Lock,
	}
}

// Register mounts every named endpoint on e, following manifold's
// register-routes-onto-a-shared-echo.Echo convention (routes.go).
func (s *Server) Register(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.POST("/ambient_recall", s.withAuth("ambient_recall", s.handleAmbientRecall))
	e.POST("/store_message", s.withAuth("store_message", s.handleStoreMessage))
	e.POST("/summarize_messages", s.withAuth("summarize_messages", s.handleSummarizeMessages))
	e.POST("/store_summary", s.withAuth("store_summary", s.handleStoreSummary))
	e.POST("/get_crystals", s.withAuth("get_crystals", s.handleGetCrystals))
	e.POST("/get_turns_since", s.withAuth("get_turns_since", s.handleGetTurnsSince))
	e.POST("/get_turns_since_summary", s.withAuth("get_turns_since_summary", s.handleGetTurnsSinceSummary))
	e.POST("/graphiti_ingestion_stats", s.withAuth("graphiti_ingestion_stats", s.handleGraphitiStats))
	e.POST("/ingest_batch_to_graphiti", s.withAuth("ingest_batch_to_graphiti", s.handleIngestBatch))
	e.POST("/delete_edge", s.withAuth("delete_edge", s.handleDeleteEdge))
	e.POST("/texture_search", s.withAuth("texture_search", s.handleTextureSearch))
	e.POST("/context/agent", s.withAuth("agent_context", s.handleAgentContext))
	e.POST("/friction/search", s.withAuth("friction_search", s.handleFrictionSearch))
	e.POST("/acquire_lock", s.withAuth("acquire_lock", s.handleAcquireLock))
	e.POST("/release_lock", s.withAuth("release_lock", s.handleReleaseLock))
	e.POST("/lock_status", s.withAuth("lock_status", s.handleLockStatus))
	// unauthenticated: used for liveness probes, but still traced
	e.POST("/pps_health", func(c echo.Context) error {
		start := time.Now()
		err := s.handlePPSHealth(c)
		s.logTrace(c, "pps_health", start, err)
		return err
	})
}

// errorResponse is the shape every failed call returns (spec.md §7:
// "{success: false, error_kind, advice}"; never a raw stack trace).
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error_kind"`
	Advice  string `json:"advice"`
}

func jsonError(c echo.Context, status int, kind, advice string) error {
	return c.JSON(status, errorResponse{Success: false, Error: kind, Advice: advice})
}

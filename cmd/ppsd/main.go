/*
ppsd runs the Pattern Persistence Service for a single entity: the RPC/tool
surface (internal/rpc) plus the background ingestion scheduler
(internal/scheduler), both scoped to one entity's private data directory.

Usage:

	go run cmd/ppsd/main.go -config config.yaml

Flags:

	-config string
	    Path to a YAML config file (ENTITY_NAME/ENTITY_PATH env vars can
	    substitute for entity_name/entity_path in the file)
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"pps/internal/capture"
	"pps/internal/config"
	"pps/internal/curated"
	"pps/internal/embedding"
	"pps/internal/entity"
	"pps/internal/entitylock"
	"pps/internal/graphclient"
	"pps/internal/llmcap"
	"pps/internal/logging"
	"pps/internal/recall"
	"pps/internal/rpc"
	"pps/internal/scheduler"
	"pps/internal/store"
	"pps/internal/summaries"
	"pps/internal/texture"
	"pps/internal/trace"
	"pps/internal/vectorclient"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.PrintSummary()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "ppsd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	ent, err := entity.Open(cfg.EntityName, cfg.EntityPath)
	if err != nil {
		return fmt.Errorf("open entity: %w", err)
	}

	log := logging.New(cfg.EntityName, cfg.EntityPath, cfg.LogLevel)

	relational, err := store.Connect(ctx, cfg.Relational, cfg.SchemaName())
	if err != nil {
		return fmt.Errorf("connect relational store: %w", err)
	}
	defer relational.Close()

	graph, err := graphclient.Connect(ctx, cfg.Graph)
	if err != nil {
		return fmt.Errorf("connect graph client: %w", err)
	}
	defer graph.Close(ctx)

	vector, err := vectorclient.Connect(ctx, cfg.Vector)
	if err != nil {
		return fmt.Errorf("connect vector client: %w", err)
	}
	defer vector.Close()

	embedder := embedding.New(cfg.Embedding)
	invoker := llmcap.New(cfg.LLM)
	traces := trace.New(relational, "ppsd")

	captureLayer := capture.New(relational)
	sumLayer := summaries.New(relational, relational)
	texLayer := texture.New(graph, invoker, cfg.EntityName, cfg.LLM.Model)
	wordPhotos := curated.New(vector, embedder, "word_photos")
	techRAG := curated.New(vector, embedder, "tech_rag")
	friction := curated.New(vector, embedder, "friction_lessons")

	summarizer := scheduler.NewLLMSummarizer(invoker, cfg.LLM.Model)
	sched := scheduler.New(relational, relational, sumLayer, texLayer, summarizer, cfg.Scheduler, log)
	go sched.Run(ctx)

	recallEngine := recall.New(texLayer, sumLayer, wordPhotos, techRAG, relational, ent.CrystalsCurrentDir(), cfg.Recall)
	lock := entitylock.New(ent.LockPath(), entitylock.DefaultTTL)

	server := rpc.New(rpc.Deps{
		Entity:     ent,
		Turns:      relational,
		Capture:    captureLayer,
		Summaries:  sumLayer,
		Texture:    texLayer,
		Batches:    relational,
		Scheduler:  sched,
		Recall:     recallEngine,
		WordPhotos: wordPhotos,
		TechRAG:    techRAG,
		Friction:   friction,
		Traces:     traces,
		Lock:       lock,
	})

	e := echo.New()
	e.HideBanner = true
	server.Register(e)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.WithField("addr", addr).Info("ppsd listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return e.Shutdown(shutdownCtx)
}

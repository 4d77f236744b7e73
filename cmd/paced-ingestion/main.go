/*
paced-ingestion drains the L1->L3 graph-ingestion backlog in small batches
with a pause between each, for operators who want a bounded one-shot run
instead of waiting on the scheduler's own ticks. Generalizes
scripts/paced_ingestion.py.

Usage:

	go run cmd/paced-ingestion/main.go -config config.yaml \
	    [-batch-size 50] [-pause 30s] [-max-batches 0]

Flags:

	-batch-size   turns per batch (default 50)
	-pause        sleep between batches (default 30s)
	-max-batches  stop after N batches, 0 = unlimited (default: run until backlog is empty)
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pps/internal/config"
	"pps/internal/graphclient"
	"pps/internal/llmcap"
	"pps/internal/logging"
	"pps/internal/scheduler"
	"pps/internal/store"
	"pps/internal/texture"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	batchSize := flag.Int("batch-size", 50, "turns per batch")
	pause := flag.Duration("pause", 30*time.Second, "sleep between batches")
	maxBatches := flag.Int("max-batches", 0, "stop after N batches, 0 = unlimited")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, *batchSize, *pause, *maxBatches); err != nil {
		fmt.Fprintf(os.Stderr, "paced-ingestion: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, batchSize int, pause time.Duration, maxBatches int) error {
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

	invoker := llmcap.New(cfg.LLM)
	texLayer := texture.New(graph, invoker, cfg.EntityName, cfg.LLM.Model)
	sched := scheduler.New(relational, relational, nil, texLayer, nil, cfg.Scheduler, log)

	batches := 0
	for {
		if maxBatches > 0 && batches >= maxBatches {
			fmt.Printf("reached max-batches (%d), stopping\n", maxBatches)
			return nil
		}

		ingested, failed, remaining, err := sched.IngestBatch(ctx, batchSize)
		if err != nil {
			return fmt.Errorf("ingest batch: %w", err)
		}
		batches++
		fmt.Printf("batch %d: ingested=%d failed=%d remaining=%d\n", batches, ingested, failed, remaining)

		if ingested == 0 && failed == 0 {
			fmt.Println("backlog empty, done.")
			return nil
		}
		if remaining == 0 {
			fmt.Println("backlog drained, done.")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

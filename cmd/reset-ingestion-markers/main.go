/*
reset-ingestion-markers clears every graphiti_batch_id in the relational
store and discards all batch records, so the scheduler re-processes the
entire backlog from scratch. Intended for recovery after a buggy ingestion
run left turns marked as ingested with nothing actually written to the
graph (scripts/reset_ingestion_markers.py's scenario).

Usage:

	go run cmd/reset-ingestion-markers/main.go -config config.yaml [-dry-run]
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"pps/internal/config"
	"pps/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	dryRun := flag.Bool("dry-run", false, "show counts without modifying")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "reset-ingestion-markers: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, dryRun bool) error {
	relational, err := store.Connect(ctx, cfg.Relational, cfg.SchemaName())
	if err != nil {
		return fmt.Errorf("connect relational store: %w", err)
	}
	defer relational.Close()

	marked, err := relational.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("count turns: %w", err)
	}
	pending, err := relational.CountUningestedToGraph(ctx)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	fmt.Printf("total turns: %d\ncurrently pending: %d\n", marked, pending)

	if dryRun {
		fmt.Println("[dry run] would clear graphiti_batch_id for every ingested turn and delete all batch records")
		return nil
	}

	if err := relational.ResetIngestionMarkers(ctx); err != nil {
		return fmt.Errorf("reset markers: %w", err)
	}
	fmt.Println("done. every turn is now pending graph ingestion.")
	return nil
}

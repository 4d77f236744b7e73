/*
repair-ingestion-markers clears graphiti_batch_id for turns in a specific
id range, marking them for re-ingestion without touching the rest of the
backlog. Generalizes scripts/repair_jina_records.py's embedding-provider-swap
repair (a fixed [17387, 19726] window after a misconfigured provider
poisoned a run of batches) into an operator-supplied range for any similar
incident.

Does not touch the graph store: repaired turns are simply re-ingested, and
duplicate-looking facts from the bad run are left for the curator to clean
up (spec.md §4.6).

Usage:

	go run cmd/repair-ingestion-markers/main.go -config config.yaml \
	    -start-id 17387 -end-id 19726 [-dry-run] [-yes]

Flags:

	-start-id, -end-id   inclusive turn id range to repair (required)
	-dry-run             report the affected count without modifying anything
	-yes                 skip the interactive confirmation prompt
*/
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"pps/internal/config"
	"pps/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	startID := flag.Int64("start-id", 0, "first turn id to repair (inclusive)")
	endID := flag.Int64("end-id", 0, "last turn id to repair (inclusive)")
	dryRun := flag.Bool("dry-run", false, "show what would be repaired without making changes")
	yes := flag.Bool("yes", false, "skip the interactive confirmation prompt")
	flag.Parse()

	if *startID <= 0 || *endID < *startID {
		fmt.Fprintln(os.Stderr, "error: -start-id and -end-id are required, with end-id >= start-id")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, *startID, *endID, *dryRun, *yes); err != nil {
		fmt.Fprintf(os.Stderr, "repair-ingestion-markers: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, startID, endID int64, dryRun, yes bool) error {
	relational, err := store.Connect(ctx, cfg.Relational, cfg.SchemaName())
	if err != nil {
		return fmt.Errorf("connect relational store: %w", err)
	}
	defer relational.Close()

	fmt.Printf("affected turn id range: [%d, %d]\n", startID, endID)

	if dryRun {
		n, err := relational.CountMarkedInRange(ctx, startID, endID)
		if err != nil {
			return fmt.Errorf("dry-run repair count: %w", err)
		}
		fmt.Printf("[dry run] would clear graphiti_batch_id for %d turns\n", n)
		return nil
	}

	if !yes && !confirm() {
		fmt.Println("aborted, no changes made.")
		return nil
	}

	n, err := relational.RepairIngestionMarkers(ctx, startID, endID)
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	fmt.Printf("done. cleared graphiti_batch_id for %d turns; they will be re-ingested on the next graph tick.\n", n)
	return nil
}

func confirm() bool {
	fmt.Print("This will mark the range for re-ingestion. Continue? [y/N] ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

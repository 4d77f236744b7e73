/*
curator runs one knowledge-graph maintenance sweep (internal/curator) for a
single entity: sample the graph around its seed entities, identify vague
nodes and duplicate edges, and either report them or delete the
conservative subset of clear problems.

Usage:

	go run cmd/curator/main.go -config config.yaml [-deep] [-auto-delete]

Flags:

	-config string
	    Path to a YAML config file
	-deep
	    Extend the seed list with a broader set of key entities, matching
	    graph_curator.py's --deep mode
	-auto-delete
	    Delete the conservative subset of identified issues (default:
	    report only)
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"pps/internal/config"
	"pps/internal/curator"
	"pps/internal/graphclient"
	"pps/internal/logging"
	"pps/internal/store"
	"pps/internal/trace"
)

// deepModeSeeds matches graph_curator.py's --deep extension of the base
// search_queries list.
var deepModeSeeds = []string{
	"emotion", "decision", "relationship", "goal",
	"implementation", "reflection", "memory", "learning",
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	deep := flag.Bool("deep", false, "extend seed list with a broader entity set")
	autoDelete := flag.Bool("auto-delete", false, "delete the conservative subset of identified issues")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, *deep, *autoDelete); err != nil {
		fmt.Fprintf(os.Stderr, "curator: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, deep, autoDelete bool) error {
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

	curCfg := cfg.Curator
	if deep {
		curCfg.Seeds = append(append([]string{}, curCfg.Seeds...), deepModeSeeds...)
	}

	traces := trace.New(relational, "curator")
	cur := curator.New(graph, traces, cfg.EntityName, curCfg)

	mode := curator.ModeReportOnly
	if autoDelete {
		mode = curator.ModeAutoDelete
	}

	fmt.Printf("GRAPH CURATOR — mode=%s deep=%v seeds=%s\n", mode, deep, strings.Join(curCfg.Seeds, ","))

	report, err := cur.Sweep(ctx, mode)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	fmt.Printf("vague entities:   %d\n", len(report.VagueEntities))
	for _, n := range report.VagueEntities {
		fmt.Printf("  - %q\n", n.Name)
	}
	fmt.Printf("duplicate groups: %d\n", len(report.DuplicateEdges))
	for _, g := range report.DuplicateEdges {
		fmt.Printf("  - kept %s, %d duplicate(s)\n", g.Kept.UUID, len(g.Extra))
	}
	if autoDelete {
		fmt.Printf("deleted edges:    %d\n", len(report.DeletedEdgeUUIDs))
	} else {
		fmt.Println("not deleting — rerun with -auto-delete to remove the conservative subset")
	}

	log.WithField("vague", len(report.VagueEntities)).
		WithField("duplicate_groups", len(report.DuplicateEdges)).
		WithField("deleted", len(report.DeletedEdgeUUIDs)).
		Info("curator sweep complete")
	return nil
}

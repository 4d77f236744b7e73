// Package curator implements the bounded sampler (spec.md §4.6): periodic
// sweeps over a fixed seed-entity list looking for vague entities and
// duplicate edges, either reported or deleted depending on mode.
package curator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"pps/internal/config"
	"pps/internal/graphclient"
	"pps/internal/trace"
)

// Mode selects whether a sweep only reports findings or also deletes the
// strictest subset of them (spec.md §4.6).
type Mode string

const (
	ModeReportOnly Mode = "report_only"
	ModeAutoDelete Mode = "auto_delete"
)

// strictBlocklist is the literal set of vague names eligible for auto-delete,
// a stricter subset of cfg.VagueBlocklist (spec.md §4.6: "literally
// ?/""/The/..." names).
var strictBlocklist = map[string]bool{"?": true, "": true, "the": true, "...": true}

// DuplicateGroup is a set of edges sharing (subject, predicate, object,
// fact); Kept is the oldest, Extra are the rest.
type DuplicateGroup struct {
	Kept  graphclient.Edge
	Extra []graphclient.Item
}

// Report is the structured output of a sweep (spec.md §4.6).
type Report struct {
	VagueEntities   []graphclient.Node
	DuplicateEdges  []DuplicateGroup
	DeletedEdgeUUIDs []string
}

// Curator periodically samples seed entities for curation issues.
type Curator struct {
	graph  graphclient.Client
	traces *trace.Writer
	cfg    config.CuratorConfig
	group  string
}

// New builds a Curator scoped to group (the entity's group_id).
func New(graph graphclient.Client, traces *trace.Writer, group string, cfg config.CuratorConfig) *Curator {
	return &Curator{graph: graph, traces: traces, group: group, cfg: cfg}
}

// Sweep runs one pass over cfg.Seeds, in the given Mode.
func (c *Curator) Sweep(ctx context.Context, mode Mode) (Report, error) {
	var report Report
	seenVague := map[string]bool{}
	edgeGroups := map[string][]graphclient.Item{}

	for _, seed := range c.cfg.Seeds {
		items, err := c.graph.Search(ctx, c.group, "", graphclient.SearchOptions{
			CenterEntityName: seed,
			LimitEdges:       500,
			LimitNodes:       500,
			ExploreDepth:     1,
		})
		if err != nil {
			return report, fmt.Errorf("search seed %q: %w", seed, err)
		}
		for _, it := range items {
			switch it.Kind {
			case graphclient.ItemNode:
				if it.Node == nil {
					continue
				}
				if isVague(*it.Node, c.cfg) && !seenVague[strings.ToLower(it.Node.Name)] {
					seenVague[strings.ToLower(it.Node.Name)] = true
					report.VagueEntities = append(report.VagueEntities, *it.Node)
				}
			case graphclient.ItemEdge:
				if it.Edge == nil {
					continue
				}
				key := edgeKey(*it.Edge)
				edgeGroups[key] = append(edgeGroups[key], it)
			}
		}
	}

	for _, group := range edgeGroups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Edge.CreatedAt.Before(group[j].Edge.CreatedAt) })
		dup := DuplicateGroup{Kept: *group[0].Edge, Extra: group[1:]}
		report.DuplicateEdges = append(report.DuplicateEdges, dup)
	}

	if mode == ModeAutoDelete {
		if err := c.autoDelete(ctx, &report, edgeGroups); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (c *Curator) autoDelete(ctx context.Context, report *Report, edgeGroups map[string][]graphclient.Item) error {
	for _, node := range report.VagueEntities {
		if !strictBlocklist[strings.ToLower(node.Name)] {
			continue
		}
		for _, items := range edgeGroups {
			for _, it := range items {
				if it.Edge == nil {
					continue
				}
				if strings.EqualFold(it.Edge.SubjectName, node.Name) || strings.EqualFold(it.Edge.ObjectName, node.Name) {
					if err := c.deleteEdge(ctx, it.Edge.UUID, report); err != nil {
						return err
					}
				}
			}
		}
	}

	for _, dup := range report.DuplicateEdges {
		for _, extra := range dup.Extra {
			if extra.Relevance <= c.cfg.DuplicateMaxRel {
				if err := c.deleteEdge(ctx, extra.Edge.UUID, report); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *Curator) deleteEdge(ctx context.Context, uuid string, report *Report) error {
	if err := c.graph.DeleteEdge(ctx, c.group, uuid); err != nil {
		return fmt.Errorf("delete edge %s: %w", uuid, err)
	}
	report.DeletedEdgeUUIDs = append(report.DeletedEdgeUUIDs, uuid)
	if c.traces != nil {
		_ = c.traces.Log(ctx, trace.Event{
			SessionID: "curator",
			EventType: "delete_edge",
			Params:    map[string]string{"uuid": uuid, "group_id": c.group},
		})
	}
	return nil
}

func isVague(n graphclient.Node, cfg config.CuratorConfig) bool {
	name := strings.ToLower(strings.TrimSpace(n.Name))
	for _, blocked := range cfg.VagueBlocklist {
		if name == strings.ToLower(blocked) {
			return true
		}
	}
	return len([]rune(strings.TrimSpace(n.Name))) < cfg.MinVisibleChars
}

func edgeKey(e graphclient.Edge) string {
	return strings.ToLower(e.SubjectName) + "\x00" + strings.ToLower(e.Predicate) + "\x00" + strings.ToLower(e.ObjectName) + "\x00" + strings.ToLower(e.FactText)
}

// NextSweep returns cfg.SweepInterval, or one hour when it is unset.
// cmd/curator runs a single sweep and does not call it.
func NextSweep(cfg config.CuratorConfig) time.Duration {
	if cfg.SweepInterval <= 0 {
		return time.Hour
	}
	return cfg.SweepInterval
}

// Package graphclient is the graph-client capability (C2): typed edges and
// nodes with temporal validity, keyed by group_id (spec.md §3 "Graph edge").
package graphclient

import (
	"context"
	"time"
)

// DuplicateEdgePredicate is the logical predicate used to merge duplicate
// nodes during curation; spec.md §3 requires it never appear in retrieval
// output.
const DuplicateEdgePredicate = "IS_DUPLICATE_OF"

// Edge is a typed, temporally-scoped fact between two named entities
// (spec.md §3 "Graph edge").
type Edge struct {
	UUID          string
	SubjectName   string
	Predicate     string
	ObjectName    string
	FactText      string
	ValidAt       time.Time
	CreatedAt     time.Time
	GroupID       string
	SourceLabels  []string
	TargetLabels  []string
}

// Node is an entity in the graph, identified by (group_id, lowercased name)
// per spec.md §3.
type Node struct {
	Name    string
	GroupID string
	Labels  []string
	Summary string
	// Degree is the node's edge count, as reported by Search. Nodes are
	// keyed by (GroupID, lowercased name) on upsert, so a name maps to one
	// node; Search does not merge or choose among nodes by Degree.
	Degree int
}

// ItemKind distinguishes the two shapes a search result can take.
type ItemKind string

const (
	ItemEdge ItemKind = "edge"
	ItemNode ItemKind = "node"
)

// Item is one ranked entry returned by a search (spec.md §4.3: "a list of
// ranked items, each being one of {Edge, EntityNode}").
type Item struct {
	Kind      ItemKind
	Edge      *Edge
	Node      *Node
	Relevance float64 // convex combination of semantic similarity + graph proximity, in [0,1]
}

// SearchOptions configures an entity-centric search (spec.md §4.3).
type SearchOptions struct {
	CenterEntityName string // defaults to the process's entity name
	LimitEdges       int
	LimitNodes       int
	ExploreDepth     int
}

// Client is the graph-client capability surface.
type Client interface {
	// UpsertNode creates or updates a node, keyed by (GroupID, lower(Name)).
	UpsertNode(ctx context.Context, n Node) error
	// UpsertEdge creates or updates an edge by UUID.
	UpsertEdge(ctx context.Context, e Edge) error

	// Search performs the entity-centric search contract of spec.md §4.3:
	// ranked by a convex combination of semantic similarity to query and
	// graph proximity to options.CenterEntityName, with deterministic
	// tie-break (relevance desc, created_at desc, uuid asc), IS_DUPLICATE_OF
	// edges filtered out.
	Search(ctx context.Context, groupID, query string, opts SearchOptions) ([]Item, error)

	// DeleteEdge removes a single edge by uuid (spec.md §4.3).
	DeleteEdge(ctx context.Context, groupID, uuid string) error

	// Explore returns a breadth-limited neighborhood of entityName,
	// restricted to groupID (spec.md §4.3).
	Explore(ctx context.Context, groupID, entityName string, depth int) ([]Item, error)

	Close(ctx context.Context) error
}

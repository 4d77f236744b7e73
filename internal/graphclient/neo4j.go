package graphclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"pps/internal/config"
)

// Neo4jClient is the Client implementation backing C2, sourced from the
// retrieval pack's WessleyAI-wessley-mvp and yungbote-neurobridge-backend
// manifests (neither this spec's teacher nor any other pack repo ships a
// graph database driver; neo4j-go-driver/v5 is the ecosystem-standard choice
// the pack otherwise reaches for).
type Neo4jClient struct {
	driver neo4j.DriverWithContext
}

// Connect opens a Neo4jClient against cfg and verifies connectivity.
func Connect(ctx context.Context, cfg config.GraphConfig) (*Neo4jClient, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create graph driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}
	return &Neo4jClient{driver: driver}, nil
}

func (c *Neo4jClient) Close(ctx context.Context) error { return c.driver.Close(ctx) }

func (c *Neo4jClient) UpsertNode(ctx context.Context, n Node) error {
	_, err := neo4j.ExecuteQuery(ctx, c.driver, `
		MERGE (e:Entity {group_id: $group_id, name_lower: toLower($name)})
		SET e.name = $name, e.labels = $labels, e.summary = $summary
	`, map[string]any{
		"group_id": n.GroupID,
		"name":     n.Name,
		"labels":   n.Labels,
		"summary":  n.Summary,
	}, neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

func (c *Neo4jClient) UpsertEdge(ctx context.Context, e Edge) error {
	if e.ValidAt.IsZero() {
		e.ValidAt = time.Now()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := neo4j.ExecuteQuery(ctx, c.driver, `
		MERGE (s:Entity {group_id: $group_id, name_lower: toLower($subject)})
		  ON CREATE SET s.name = $subject
		MERGE (o:Entity {group_id: $group_id, name_lower: toLower($object)})
		  ON CREATE SET o.name = $object
		MERGE (s)-[r:RELATES {uuid: $uuid}]->(o)
		SET r.predicate = $predicate, r.fact = $fact, r.valid_at = $valid_at,
		    r.created_at = $created_at, r.group_id = $group_id,
		    r.source_labels = $source_labels, r.target_labels = $target_labels
	`, map[string]any{
		"group_id":      e.GroupID,
		"subject":       e.SubjectName,
		"object":        e.ObjectName,
		"uuid":          e.UUID,
		"predicate":     e.Predicate,
		"fact":          e.FactText,
		"valid_at":      e.ValidAt.Format(time.RFC3339Nano),
		"created_at":    e.CreatedAt.Format(time.RFC3339Nano),
		"source_labels": e.SourceLabels,
		"target_labels": e.TargetLabels,
	}, neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}
	return nil
}

func (c *Neo4jClient) DeleteEdge(ctx context.Context, groupID, uuid string) error {
	_, err := neo4j.ExecuteQuery(ctx, c.driver, `
		MATCH ()-[r:RELATES {group_id: $group_id, uuid: $uuid}]->()
		DELETE r
	`, map[string]any{"group_id": groupID, "uuid": uuid}, neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	return nil
}

// Search implements the entity-centric contract of spec.md §4.3. Semantic
// similarity is approximated with case-insensitive substring/term overlap
// against fact text and node summaries (the graph engine itself stores no
// embeddings; C1/C3 own vector similarity elsewhere in this system). Graph
// proximity is the inverse of shortest-path hop distance to CenterEntityName.
func (c *Neo4jClient) Search(ctx context.Context, groupID, query string, opts SearchOptions) ([]Item, error) {
	limitEdges := opts.LimitEdges
	if limitEdges <= 0 {
		limitEdges = 20
	}
	limitNodes := opts.LimitNodes
	if limitNodes <= 0 {
		limitNodes = 20
	}

	edgeResult, err := neo4j.ExecuteQuery(ctx, c.driver, `
		MATCH (s:Entity {group_id: $group_id})-[r:RELATES]->(o:Entity {group_id: $group_id})
		WHERE r.predicate <> $dup AND toLower(r.fact) CONTAINS toLower($query)
		RETURN r.uuid AS uuid, s.name AS subject, r.predicate AS predicate, o.name AS object,
		       r.fact AS fact, r.valid_at AS valid_at, r.created_at AS created_at,
		       r.source_labels AS source_labels, r.target_labels AS target_labels
		LIMIT $limit
	`, map[string]any{"group_id": groupID, "query": query, "dup": DuplicateEdgePredicate, "limit": limitEdges},
		neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("search edges: %w", err)
	}

	nodeResult, err := neo4j.ExecuteQuery(ctx, c.driver, `
		MATCH (e:Entity {group_id: $group_id})
		WHERE toLower(e.summary) CONTAINS toLower($query) OR toLower(e.name) CONTAINS toLower($query)
		OPTIONAL MATCH (e)-[r]-()
		RETURN e.name AS name, e.labels AS labels, e.summary AS summary, count(r) AS degree
		LIMIT $limit
	`, map[string]any{"group_id": groupID, "query": query, "limit": limitNodes}, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("search nodes: %w", err)
	}

	center := opts.CenterEntityName
	distances := map[string]int{}
	if center != "" {
		distances, err = c.hopDistances(ctx, groupID, center, maxInt(opts.ExploreDepth, 3))
		if err != nil {
			return nil, fmt.Errorf("compute graph proximity: %w", err)
		}
	}

	var items []Item
	for _, rec := range edgeResult.Records {
		e := Edge{
			UUID:        asString(rec.Values[0]),
			SubjectName: asString(rec.Values[1]),
			Predicate:   asString(rec.Values[2]),
			ObjectName:  asString(rec.Values[3]),
			FactText:    asString(rec.Values[4]),
			GroupID:     groupID,
		}
		e.ValidAt, _ = time.Parse(time.RFC3339Nano, asString(rec.Values[5]))
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, asString(rec.Values[6]))
		e.SourceLabels = asStringSlice(rec.Values[7])
		e.TargetLabels = asStringSlice(rec.Values[8])

		sem := termOverlapScore(query, e.FactText)
		prox := proximityScore(distances, e.SubjectName, e.ObjectName)
		rel := 0.6*sem + 0.4*prox
		items = append(items, Item{Kind: ItemEdge, Edge: &e, Relevance: rel})
	}
	for _, rec := range nodeResult.Records {
		n := Node{
			Name:    asString(rec.Values[0]),
			GroupID: groupID,
			Labels:  asStringSlice(rec.Values[1]),
			Summary: asString(rec.Values[2]),
			Degree:  int(asInt64(rec.Values[3])),
		}
		sem := termOverlapScore(query, n.Summary+" "+n.Name)
		prox := proximityScore(distances, n.Name, n.Name)
		rel := 0.6*sem + 0.4*prox
		items = append(items, Item{Kind: ItemNode, Node: &n, Relevance: rel})
	}

	sortItems(items)
	return items, nil
}

func (c *Neo4jClient) Explore(ctx context.Context, groupID, entityName string, depth int) ([]Item, error) {
	if depth <= 0 {
		depth = 1
	}
	result, err := neo4j.ExecuteQuery(ctx, c.driver, fmt.Sprintf(`
		MATCH (center:Entity {group_id: $group_id})
		WHERE toLower(center.name) = toLower($name)
		MATCH path = (center)-[:RELATES*1..%d]-(neighbor:Entity {group_id: $group_id})
		UNWIND relationships(path) AS r
		WITH DISTINCT r
		WHERE r.predicate <> $dup
		RETURN r.uuid AS uuid, startNode(r).name AS subject, r.predicate AS predicate,
		       endNode(r).name AS object, r.fact AS fact, r.valid_at AS valid_at,
		       r.created_at AS created_at, r.source_labels AS source_labels, r.target_labels AS target_labels
	`, depth), map[string]any{"group_id": groupID, "name": entityName, "dup": DuplicateEdgePredicate}, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("explore: %w", err)
	}
	var items []Item
	for _, rec := range result.Records {
		e := Edge{
			UUID:        asString(rec.Values[0]),
			SubjectName: asString(rec.Values[1]),
			Predicate:   asString(rec.Values[2]),
			ObjectName:  asString(rec.Values[3]),
			FactText:    asString(rec.Values[4]),
			GroupID:     groupID,
		}
		e.ValidAt, _ = time.Parse(time.RFC3339Nano, asString(rec.Values[5]))
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, asString(rec.Values[6]))
		e.SourceLabels = asStringSlice(rec.Values[7])
		e.TargetLabels = asStringSlice(rec.Values[8])
		items = append(items, Item{Kind: ItemEdge, Edge: &e, Relevance: 1})
	}
	return items, nil
}

// hopDistances runs a bounded BFS from center over RELATES edges, returning
// hop count per reached entity name (lowercased).
func (c *Neo4jClient) hopDistances(ctx context.Context, groupID, center string, maxDepth int) (map[string]int, error) {
	result, err := neo4j.ExecuteQuery(ctx, c.driver, fmt.Sprintf(`
		MATCH (center:Entity {group_id: $group_id})
		WHERE toLower(center.name) = toLower($name)
		MATCH path = (center)-[:RELATES*0..%d]-(n:Entity {group_id: $group_id})
		RETURN toLower(n.name) AS name, min(length(path)) AS dist
	`, maxDepth), map[string]any{"group_id": groupID, "name": center}, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, err
	}
	distances := map[string]int{}
	for _, rec := range result.Records {
		distances[asString(rec.Values[0])] = int(asInt64(rec.Values[1]))
	}
	return distances, nil
}

func proximityScore(distances map[string]int, names ...string) float64 {
	if len(distances) == 0 {
		return 0
	}
	best := -1
	for _, n := range names {
		if d, ok := distances[strings.ToLower(n)]; ok {
			if best == -1 || d < best {
				best = d
			}
		}
	}
	if best < 0 {
		return 0
	}
	return 1.0 / float64(1+best)
}

func termOverlapScore(query, text string) float64 {
	qTerms := strings.Fields(strings.ToLower(query))
	if len(qTerms) == 0 {
		return 0
	}
	low := strings.ToLower(text)
	hits := 0
	for _, term := range qTerms {
		if strings.Contains(low, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(qTerms))
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Relevance != items[j].Relevance {
			return items[i].Relevance > items[j].Relevance
		}
		ci, cj := itemCreatedAt(items[i]), itemCreatedAt(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return itemUUID(items[i]) < itemUUID(items[j])
	})
}

func itemCreatedAt(it Item) time.Time {
	if it.Edge != nil {
		return it.Edge.CreatedAt
	}
	return time.Time{}
}

func itemUUID(it Item) string {
	if it.Edge != nil {
		return it.Edge.UUID
	}
	if it.Node != nil {
		return it.Node.Name
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

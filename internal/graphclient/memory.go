package graphclient

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process fake Client, mirroring manifold's
// databases.NewMemoryGraph in-memory-fake idiom for tests and for small
// single-entity deployments without a Neo4j instance.
type Memory struct {
	mu    sync.Mutex
	nodes map[string]map[string]Node // groupID -> lower(name) -> Node
	edges map[string][]Edge          // groupID -> edges
}

// NewMemory returns an empty in-memory Client.
func NewMemory() *Memory {
	return &Memory{nodes: map[string]map[string]Node{}, edges: map[string][]Edge{}}
}

func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) UpsertNode(ctx context.Context, n Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nodes[n.GroupID] == nil {
		m.nodes[n.GroupID] = map[string]Node{}
	}
	m.nodes[n.GroupID][strings.ToLower(n.Name)] = n
	return nil
}

func (m *Memory) UpsertEdge(ctx context.Context, e Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ValidAt.IsZero() {
		e.ValidAt = time.Now()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	edges := m.edges[e.GroupID]
	for i, existing := range edges {
		if existing.UUID == e.UUID {
			edges[i] = e
			m.edges[e.GroupID] = edges
			return nil
		}
	}
	m.edges[e.GroupID] = append(edges, e)

	for _, name := range []string{e.SubjectName, e.ObjectName} {
		if m.nodes[e.GroupID] == nil {
			m.nodes[e.GroupID] = map[string]Node{}
		}
		key := strings.ToLower(name)
		if _, ok := m.nodes[e.GroupID][key]; !ok {
			m.nodes[e.GroupID][key] = Node{Name: name, GroupID: e.GroupID}
		}
	}
	return nil
}

func (m *Memory) DeleteEdge(ctx context.Context, groupID, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	edges := m.edges[groupID]
	for i, e := range edges {
		if e.UUID == uuid {
			m.edges[groupID] = append(edges[:i], edges[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, groupID, query string, opts SearchOptions) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limitEdges := opts.LimitEdges
	if limitEdges <= 0 {
		limitEdges = 20
	}
	limitNodes := opts.LimitNodes
	if limitNodes <= 0 {
		limitNodes = 20
	}

	distances := map[string]int{}
	if opts.CenterEntityName != "" {
		distances = m.bfs(groupID, opts.CenterEntityName, maxInt(opts.ExploreDepth, 3))
	}

	var items []Item
	for _, e := range m.edges[groupID] {
		e := e
		if e.Predicate == DuplicateEdgePredicate {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.FactText), strings.ToLower(query)) {
			continue
		}
		sem := termOverlapScore(query, e.FactText)
		prox := proximityScore(distances, e.SubjectName, e.ObjectName)
		items = append(items, Item{Kind: ItemEdge, Edge: &e, Relevance: 0.6*sem + 0.4*prox})
		if len(items) >= limitEdges {
			break
		}
	}

	nodeCount := 0
	for _, n := range m.nodes[groupID] {
		n := n
		if query != "" && !strings.Contains(strings.ToLower(n.Summary+" "+n.Name), strings.ToLower(query)) {
			continue
		}
		n.Degree = m.degree(groupID, n.Name)
		sem := termOverlapScore(query, n.Summary+" "+n.Name)
		prox := proximityScore(distances, n.Name)
		items = append(items, Item{Kind: ItemNode, Node: &n, Relevance: 0.6*sem + 0.4*prox})
		nodeCount++
		if nodeCount >= limitNodes {
			break
		}
	}

	sortItems(items)
	return items, nil
}

func (m *Memory) degree(groupID, name string) int {
	n := 0
	low := strings.ToLower(name)
	for _, e := range m.edges[groupID] {
		if strings.ToLower(e.SubjectName) == low || strings.ToLower(e.ObjectName) == low {
			n++
		}
	}
	return n
}

func (m *Memory) bfs(groupID, start string, maxDepth int) map[string]int {
	dist := map[string]int{strings.ToLower(start): 0}
	frontier := []string{strings.ToLower(start)}
	for d := 1; d <= maxDepth && len(frontier) > 0; d++ {
		var next []string
		for _, cur := range frontier {
			for _, e := range m.edges[groupID] {
				s, o := strings.ToLower(e.SubjectName), strings.ToLower(e.ObjectName)
				var neighbor string
				switch cur {
				case s:
					neighbor = o
				case o:
					neighbor = s
				default:
					continue
				}
				if _, seen := dist[neighbor]; !seen {
					dist[neighbor] = d
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}
	return dist
}

func (m *Memory) Explore(ctx context.Context, groupID, entityName string, depth int) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if depth <= 0 {
		depth = 1
	}
	dist := m.bfs(groupID, entityName, depth)
	var items []Item
	for _, e := range m.edges[groupID] {
		e := e
		if e.Predicate == DuplicateEdgePredicate {
			continue
		}
		// An edge lies on a path of at most depth hops from entityName only
		// when its nearer endpoint is fewer than depth hops away.
		sd, sOk := dist[strings.ToLower(e.SubjectName)]
		od, oOk := dist[strings.ToLower(e.ObjectName)]
		if (sOk && sd < depth) || (oOk && od < depth) {
			items = append(items, Item{Kind: ItemEdge, Edge: &e, Relevance: 1})
		}
	}
	return items, nil
}

var _ Client = (*Memory)(nil)

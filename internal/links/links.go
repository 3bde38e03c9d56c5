// Package links maintains a co-occurrence graph over extracted entities.
// Two entities are linked when they appear in the same document; edge
// weight counts the shared documents.
package links

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dominikbraun/graph"

	"github.com/tilde-sec/threatsift/internal/models"
)

// EntityKind classifies a graph node.
type EntityKind string

const (
	KindAddress  EntityKind = "address"
	KindIncident EntityKind = "incident"
	KindIoc      EntityKind = "ioc"
)

// EntityNode is one vertex in the link graph.
type EntityNode struct {
	ID        string     `json:"id"`
	Kind      EntityKind `json:"kind"`
	Value     string     `json:"value"`
	Documents []string   `json:"documents"`
}

// RelatedEntity is a traversal hit with its hop distance from the start
// node and the number of documents shared along the connecting edge.
type RelatedEntity struct {
	Node            *EntityNode `json:"node"`
	Depth           int         `json:"depth"`
	SharedDocuments int         `json:"shared_documents"`
}

// EntityGraph indexes entities by co-occurrence. Safe for concurrent use.
type EntityGraph struct {
	mu sync.RWMutex

	g graph.Graph[string, *EntityNode]

	// nodes is the authoritative vertex set; the adjacency map carries
	// co-occurrence counts that the graph edges do not need to duplicate.
	nodes     map[string]*EntityNode
	adjacency map[string]map[string]int
}

// NewEntityGraph returns an empty graph.
func NewEntityGraph() *EntityGraph {
	return &EntityGraph{
		g:         graph.New(func(n *EntityNode) string { return n.ID }, graph.Directed()),
		nodes:     make(map[string]*EntityNode),
		adjacency: make(map[string]map[string]int),
	}
}

func nodeID(kind EntityKind, value string) string {
	return string(kind) + ":" + value
}

// AddDocument links every entity extracted from one document to every
// other entity from the same document.
func (eg *EntityGraph) AddDocument(documentID string, addresses []*models.CryptoAddress, incidents []*models.Incident, iocs []*models.Ioc) {
	eg.mu.Lock()
	defer eg.mu.Unlock()

	var ids []string
	for _, addr := range addresses {
		ids = append(ids, eg.upsertNode(KindAddress, addr.Address, documentID))
	}
	for _, inc := range incidents {
		ids = append(ids, eg.upsertNode(KindIncident, inc.Title, documentID))
	}
	for _, ioc := range iocs {
		ids = append(ids, eg.upsertNode(KindIoc, ioc.Value, documentID))
	}

	for i := range ids {
		for j := range ids {
			if i == j {
				continue
			}
			eg.link(ids[i], ids[j])
		}
	}
}

func (eg *EntityGraph) upsertNode(kind EntityKind, value, documentID string) string {
	id := nodeID(kind, value)
	node, ok := eg.nodes[id]
	if !ok {
		node = &EntityNode{ID: id, Kind: kind, Value: value}
		eg.nodes[id] = node
		// Vertex may already exist after a rebuild race; the duplicate
		// error is harmless.
		_ = eg.g.AddVertex(node)
	}
	for _, doc := range node.Documents {
		if doc == documentID {
			return id
		}
	}
	node.Documents = append(node.Documents, documentID)
	return id
}

func (eg *EntityGraph) link(from, to string) {
	if eg.adjacency[from] == nil {
		eg.adjacency[from] = make(map[string]int)
	}
	if eg.adjacency[from][to] == 0 {
		_ = eg.g.AddEdge(from, to)
	}
	eg.adjacency[from][to]++
}

// NodeCount reports the number of distinct entities.
func (eg *EntityGraph) NodeCount() int {
	eg.mu.RLock()
	defer eg.mu.RUnlock()
	return len(eg.nodes)
}

// EdgeCount reports the number of directed co-occurrence edges.
func (eg *EntityGraph) EdgeCount() int {
	eg.mu.RLock()
	defer eg.mu.RUnlock()
	total := 0
	for _, neighbours := range eg.adjacency {
		total += len(neighbours)
	}
	return total
}

// Nodes returns all entities sorted by ID.
func (eg *EntityGraph) Nodes() []*EntityNode {
	eg.mu.RLock()
	defer eg.mu.RUnlock()
	out := make([]*EntityNode, 0, len(eg.nodes))
	for _, node := range eg.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edge is one directed co-occurrence link for export.
type Edge struct {
	From            string `json:"from"`
	To              string `json:"to"`
	SharedDocuments int    `json:"shared_documents"`
}

// Edges returns all links sorted by (from, to).
func (eg *EntityGraph) Edges() []Edge {
	eg.mu.RLock()
	defer eg.mu.RUnlock()
	var out []Edge
	for from, neighbours := range eg.adjacency {
		for to, weight := range neighbours {
			out = append(out, Edge{From: from, To: to, SharedDocuments: weight})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Related walks the graph breadth-first from the entity with the given
// value, up to depth hops, returning at most maxResults neighbours
// ordered by depth then descending shared-document count.
func (eg *EntityGraph) Related(value string, depth, maxResults int) ([]RelatedEntity, error) {
	eg.mu.RLock()
	defer eg.mu.RUnlock()

	if depth <= 0 {
		depth = 1
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	start := ""
	for _, kind := range []EntityKind{KindAddress, KindIncident, KindIoc} {
		if _, ok := eg.nodes[nodeID(kind, value)]; ok {
			start = nodeID(kind, value)
			break
		}
	}
	if start == "" {
		return nil, fmt.Errorf("entity not found: %s", value)
	}

	type queued struct {
		id    string
		depth int
	}
	visited := map[string]bool{start: true}
	queue := []queued{{id: start, depth: 0}}
	var hits []RelatedEntity

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= depth {
			continue
		}

		neighbourIDs := make([]string, 0, len(eg.adjacency[current.id]))
		for id := range eg.adjacency[current.id] {
			neighbourIDs = append(neighbourIDs, id)
		}
		sort.Slice(neighbourIDs, func(i, j int) bool {
			wi, wj := eg.adjacency[current.id][neighbourIDs[i]], eg.adjacency[current.id][neighbourIDs[j]]
			if wi != wj {
				return wi > wj
			}
			return neighbourIDs[i] < neighbourIDs[j]
		})

		for _, id := range neighbourIDs {
			if visited[id] {
				continue
			}
			visited[id] = true
			hits = append(hits, RelatedEntity{
				Node:            eg.nodes[id],
				Depth:           current.depth + 1,
				SharedDocuments: eg.adjacency[current.id][id],
			})
			queue = append(queue, queued{id: id, depth: current.depth + 1})
		}
	}

	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}

// BuildFromEntities groups stored entities by their owning document and
// builds a fresh graph from them.
func BuildFromEntities(addresses []*models.CryptoAddress, incidents []*models.Incident, iocs []*models.Ioc) *EntityGraph {
	byDoc := make(map[string]struct {
		addresses []*models.CryptoAddress
		incidents []*models.Incident
		iocs      []*models.Ioc
	})
	for _, addr := range addresses {
		entry := byDoc[addr.DocumentID]
		entry.addresses = append(entry.addresses, addr)
		byDoc[addr.DocumentID] = entry
	}
	for _, inc := range incidents {
		entry := byDoc[inc.DocumentID]
		entry.incidents = append(entry.incidents, inc)
		byDoc[inc.DocumentID] = entry
	}
	for _, ioc := range iocs {
		entry := byDoc[ioc.DocumentID]
		entry.iocs = append(entry.iocs, ioc)
		byDoc[ioc.DocumentID] = entry
	}

	eg := NewEntityGraph()
	for docID, entry := range byDoc {
		eg.AddDocument(docID, entry.addresses, entry.incidents, entry.iocs)
	}
	return eg
}

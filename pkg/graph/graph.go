// Package graph builds and analyzes the cross-company relationship graph.
// Building is a pure function of companies and persisted documents; analytics
// run over the in-memory graph and are published as an atomic generation.
package graph

import (
	"sort"

	"github.com/sokograph/backend/pkg/common"
)

type neighbor struct {
	to     int
	weight float64
}

// Graph is an undirected weighted company graph. Node order is sorted by
// company id, so identical inputs always produce identical graphs.
type Graph struct {
	nodes []string
	index map[string]int
	adj   [][]neighbor
	edges []common.RelationshipEdge

	// confidence is the mean extracted-fact confidence per node, used by
	// risk scoring for nodes with no edges.
	confidence []float64
}

func newGraph(companyIDs []string) *Graph {
	nodes := append([]string(nil), companyIDs...)
	sort.Strings(nodes)

	g := &Graph{
		nodes:      nodes,
		index:      make(map[string]int, len(nodes)),
		adj:        make([][]neighbor, len(nodes)),
		confidence: make([]float64, len(nodes)),
	}
	for i, id := range nodes {
		g.index[id] = i
	}
	return g
}

func (g *Graph) addEdge(e common.RelationshipEdge) {
	a, okA := g.index[e.CompanyA]
	b, okB := g.index[e.CompanyB]
	if !okA || !okB || a == b {
		return
	}
	g.edges = append(g.edges, e)
	g.adj[a] = append(g.adj[a], neighbor{to: b, weight: e.Weight})
	g.adj[b] = append(g.adj[b], neighbor{to: a, weight: e.Weight})
}

// Nodes returns company ids in node order.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// Edges returns the edge list sorted by (company_a, company_b).
func (g *Graph) Edges() []common.RelationshipEdge {
	return g.edges
}

// Degree returns the number of distinct neighbors of a node.
func (g *Graph) Degree(companyID string) int {
	i, ok := g.index[companyID]
	if !ok {
		return 0
	}
	return len(g.adj[i])
}

// components returns connected components as slices of node indices, each
// sorted, ordered by their smallest member.
func (g *Graph) components() [][]int {
	visited := make([]bool, len(g.nodes))
	var components [][]int

	for i := range g.nodes {
		if visited[i] {
			continue
		}
		var comp []int
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			comp = append(comp, node)
			for _, nb := range g.adj[node] {
				if !visited[nb.to] {
					visited[nb.to] = true
					queue = append(queue, nb.to)
				}
			}
		}
		sort.Ints(comp)
		components = append(components, comp)
	}
	return components
}

package graph

import (
	"math"

	"github.com/sokograph/backend/pkg/common"
)

const (
	pagerankDamping    = 0.85
	powerIterations    = 100
	powerConvergeDelta = 1e-9
)

// Centrality computes the per-node centrality measures. Betweenness,
// closeness and eigenvector run per connected component; isolated nodes
// score zero on every measure.
func (g *Graph) Centrality() []common.CentralityScore {
	n := len(g.nodes)
	scores := make([]common.CentralityScore, n)
	for i, id := range g.nodes {
		scores[i].CompanyID = id
	}
	if n < 2 {
		return scores
	}

	for i := range g.nodes {
		scores[i].Degree = float64(len(g.adj[i])) / float64(n-1)
	}

	betweenness := g.betweenness()
	closeness := g.closeness()
	for i := range g.nodes {
		scores[i].Betweenness = betweenness[i]
		scores[i].Closeness = closeness[i]
	}

	for _, comp := range g.components() {
		if len(comp) < 2 {
			continue
		}
		eigen := g.eigenvector(comp)
		pagerank := g.pagerank(comp)
		for k, node := range comp {
			scores[node].Eigenvector = eigen[k]
			scores[node].PageRank = pagerank[k]
		}
	}
	return scores
}

// bfs returns unweighted shortest-path distances from src, with -1 for
// unreachable nodes.
func (g *Graph) bfs(src int) []int {
	dist := make([]int, len(g.nodes))
	for i := range dist {
		dist[i] = -1
	}
	dist[src] = 0
	queue := []int{src}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, nb := range g.adj[node] {
			if dist[nb.to] < 0 {
				dist[nb.to] = dist[node] + 1
				queue = append(queue, nb.to)
			}
		}
	}
	return dist
}

// closeness uses the Wasserman-Faust formulation, which scales each node's
// score by its component's share of the graph so disconnected graphs stay
// comparable.
func (g *Graph) closeness() []float64 {
	n := len(g.nodes)
	out := make([]float64, n)
	for v := range g.nodes {
		dist := g.bfs(v)
		sum := 0
		reachable := 0
		for _, d := range dist {
			if d > 0 {
				sum += d
				reachable++
			}
		}
		if sum == 0 {
			continue
		}
		out[v] = float64(reachable) / float64(sum) * float64(reachable) / float64(n-1)
	}
	return out
}

// betweenness is Brandes' algorithm on unweighted paths, normalized for an
// undirected graph.
func (g *Graph) betweenness() []float64 {
	n := len(g.nodes)
	out := make([]float64, n)

	for s := range g.nodes {
		stack := make([]int, 0, n)
		preds := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0

		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, nb := range g.adj[v] {
				w := nb.to
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				out[w] += delta[w]
			}
		}
	}

	// Each undirected pair is counted twice above.
	norm := float64(n-1) * float64(n-2)
	if norm > 0 {
		for i := range out {
			out[i] /= norm
		}
	}
	return out
}

// eigenvector runs power iteration over one component and normalizes the
// component's scores to a unit maximum.
func (g *Graph) eigenvector(comp []int) []float64 {
	m := len(comp)
	local := make(map[int]int, m)
	for k, node := range comp {
		local[node] = k
	}

	vec := make([]float64, m)
	for k := range vec {
		vec[k] = 1.0 / float64(m)
	}
	next := make([]float64, m)

	for iter := 0; iter < powerIterations; iter++ {
		for k := range next {
			next[k] = 0
		}
		for k, node := range comp {
			for _, nb := range g.adj[node] {
				if lk, ok := local[nb.to]; ok {
					next[lk] += vec[k] * nb.weight
				}
			}
		}
		norm := 0.0
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			break
		}
		diff := 0.0
		for k := range next {
			next[k] /= norm
			diff += math.Abs(next[k] - vec[k])
		}
		vec, next = next, vec
		if diff < powerConvergeDelta {
			break
		}
	}

	maxV := 0.0
	for _, v := range vec {
		if v > maxV {
			maxV = v
		}
	}
	if maxV > 0 {
		for k := range vec {
			vec[k] /= maxV
		}
	}
	return vec
}

// pagerank runs weighted PageRank over one component.
func (g *Graph) pagerank(comp []int) []float64 {
	m := len(comp)
	local := make(map[int]int, m)
	for k, node := range comp {
		local[node] = k
	}

	outWeight := make([]float64, m)
	for k, node := range comp {
		for _, nb := range g.adj[node] {
			if _, ok := local[nb.to]; ok {
				outWeight[k] += nb.weight
			}
		}
	}

	rank := make([]float64, m)
	for k := range rank {
		rank[k] = 1.0 / float64(m)
	}
	next := make([]float64, m)
	base := (1 - pagerankDamping) / float64(m)

	for iter := 0; iter < powerIterations; iter++ {
		for k := range next {
			next[k] = base
		}
		for k, node := range comp {
			if outWeight[k] == 0 {
				continue
			}
			share := pagerankDamping * rank[k] / outWeight[k]
			for _, nb := range g.adj[node] {
				if lk, ok := local[nb.to]; ok {
					next[lk] += share * nb.weight
				}
			}
		}
		diff := 0.0
		for k := range next {
			diff += math.Abs(next[k] - rank[k])
		}
		rank, next = next, rank
		if diff < powerConvergeDelta {
			break
		}
	}
	return rank
}

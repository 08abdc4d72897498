package graph

import (
	"sort"

	"github.com/sokograph/backend/pkg/common"
)

// minComponentSplit is the minimum component size eligible for further
// modularity-based splitting; smaller components stay whole.
const minComponentSplit = 4

// modularityPasses caps the greedy optimisation loop.
const modularityPasses = 20

// Communities assigns every node to a community. Connected components form
// the base partition; components of at least minComponentSplit nodes are
// split further by greedy modularity optimisation. Community numbering is
// deterministic: groups are ordered by their smallest member.
func (g *Graph) Communities() []common.CommunityAssignment {
	totalWeight := 0.0
	for _, e := range g.edges {
		totalWeight += e.Weight
	}

	var groups [][]int
	for _, comp := range g.components() {
		if len(comp) >= minComponentSplit && totalWeight > 0 {
			groups = append(groups, g.modularitySplit(comp, totalWeight)...)
		} else {
			groups = append(groups, comp)
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0] < groups[j][0]
	})

	assignments := make([]common.CommunityAssignment, 0, len(g.nodes))
	for community, group := range groups {
		for _, node := range group {
			assignments = append(assignments, common.CommunityAssignment{
				CompanyID: g.nodes[node],
				Community: community,
			})
		}
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].CompanyID < assignments[j].CompanyID
	})
	return assignments
}

// modularitySplit greedily moves nodes to the neighbouring community with
// the best modularity gain. If no split improves modularity the component is
// returned whole.
func (g *Graph) modularitySplit(comp []int, totalWeight float64) [][]int {
	n := len(comp)
	localIdx := make(map[int]int, n)
	for i, node := range comp {
		localIdx[node] = i
	}

	community := make([]int, n)
	for i := range community {
		community[i] = i
	}

	strength := make([]float64, n)
	for i, node := range comp {
		for _, nb := range g.adj[node] {
			if _, ok := localIdx[nb.to]; ok {
				strength[i] += nb.weight
			}
		}
	}

	m2 := 2.0 * totalWeight
	commStrength := make(map[int]float64, n)
	for i := range comp {
		commStrength[community[i]] += strength[i]
	}

	for pass := 0; pass < modularityPasses; pass++ {
		moved := false
		for i, node := range comp {
			commWeights := make(map[int]float64)
			for _, nb := range g.adj[node] {
				li, ok := localIdx[nb.to]
				if !ok {
					continue
				}
				commWeights[community[li]] += nb.weight
			}

			currentComm := community[i]
			ki := strength[i]
			removeDelta := commWeights[currentComm]/m2 - (commStrength[currentComm]*ki)/(m2*m2)

			bestComm := currentComm
			bestGain := 0.0
			// Iterate candidate communities in sorted order so ties break
			// the same way on every run.
			candidates := make([]int, 0, len(commWeights))
			for c := range commWeights {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)
			for _, c := range candidates {
				if c == currentComm {
					continue
				}
				gain := (commWeights[c]/m2 - (commStrength[c]*ki)/(m2*m2)) - removeDelta
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}

			if bestComm != currentComm {
				commStrength[currentComm] -= ki
				commStrength[bestComm] += ki
				community[i] = bestComm
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	grouped := make(map[int][]int)
	for i, node := range comp {
		grouped[community[i]] = append(grouped[community[i]], node)
	}
	if len(grouped) <= 1 {
		return [][]int{comp}
	}

	result := make([][]int, 0, len(grouped))
	for _, group := range grouped {
		sort.Ints(group)
		result = append(result, group)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i][0] < result[j][0]
	})
	return result
}

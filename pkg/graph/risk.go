package graph

import (
	"github.com/sokograph/backend/pkg/common"
)

const (
	// bridgingRiskWeight scales the structural part of the risk score; the
	// remainder comes from the quality of the node's own extractions.
	bridgingRiskWeight   = 0.7
	extractionRiskWeight = 0.3
)

// Risk derives a per-company risk score in [0,1]. The structural part grows
// with betweenness (companies bridging otherwise separate clusters) and is
// discounted by the mean confidence of the evidence on the node's edges, so
// low-confidence shared identifiers cannot raise risk by themselves. Nodes
// with no edges are scored from their own extraction confidence alone.
func (g *Graph) Risk(centrality []common.CentralityScore) []common.RiskScore {
	byID := make(map[string]common.CentralityScore, len(centrality))
	for _, sc := range centrality {
		byID[sc.CompanyID] = sc
	}

	evidenceConf := g.meanEvidenceConfidence()

	scores := make([]common.RiskScore, len(g.nodes))
	for i, id := range g.nodes {
		bridging := byID[id].Betweenness * evidenceConf[i]
		extraction := 1 - g.confidence[i]
		score := bridgingRiskWeight*bridging + extractionRiskWeight*extraction
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		scores[i] = common.RiskScore{CompanyID: id, Score: score}
	}
	return scores
}

// meanEvidenceConfidence averages the confidence of all evidence facts on
// each node's incident edges. Nodes without edges get zero.
func (g *Graph) meanEvidenceConfidence() []float64 {
	sum := make([]float64, len(g.nodes))
	count := make([]int, len(g.nodes))
	for _, e := range g.edges {
		total := 0.0
		for _, ref := range e.Evidence {
			total += ref.Confidence
		}
		if len(e.Evidence) == 0 {
			continue
		}
		mean := total / float64(len(e.Evidence))
		for _, id := range []string{e.CompanyA, e.CompanyB} {
			if i, ok := g.index[id]; ok {
				sum[i] += mean
				count[i]++
			}
		}
	}

	out := make([]float64, len(g.nodes))
	for i := range out {
		if count[i] > 0 {
			out[i] = sum[i] / float64(count[i])
		}
	}
	return out
}

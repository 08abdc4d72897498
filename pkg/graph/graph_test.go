package graph

import (
	"math"
	"reflect"
	"testing"

	"github.com/sokograph/backend/pkg/common"
)

func company(id, name, taxID string) common.Company {
	return common.Company{ID: id, LegalName: name, TaxIdentifier: taxID, Status: "active"}
}

func docWithFacts(companyID, documentID string, facts ...common.Fact) common.DocumentRecord {
	return common.DocumentRecord{
		DocumentID: documentID,
		CompanyID:  companyID,
		Category:   common.CategoryInvoice,
		Facts:      facts,
	}
}

func identifierFact(value string, confidence float64) common.Fact {
	return common.Fact{Kind: common.FactTaxID, NormalizedValue: value, RawSpan: value, Confidence: confidence}
}

func TestBuildSharedIdentifierEdge(t *testing.T) {
	companies := []common.Company{
		company("co-a", "Acme Trading Ltd", ""),
		company("co-b", "Mombasa Cement Ltd", ""),
	}
	docs := []common.DocumentRecord{
		docWithFacts("co-a", "doc-1", identifierFact("XYZ987654321", 0.85)),
		docWithFacts("co-b", "doc-2", identifierFact("XYZ987654321", 0.9)),
	}

	g := Build(companies, docs)

	edges := g.Edges()
	if len(edges) != 1 {
		t.Fatalf("expected exactly one edge, got %d: %+v", len(edges), edges)
	}
	e := edges[0]
	if e.CompanyA != "co-a" || e.CompanyB != "co-b" {
		t.Fatalf("unexpected endpoints: %+v", e)
	}
	if e.Weight < 1 {
		t.Fatalf("edge weight %v, want >= 1", e.Weight)
	}
	if len(e.Evidence) != 2 {
		t.Fatalf("expected evidence from both sides, got %+v", e.Evidence)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	companies := []common.Company{
		company("co-a", "Acme Trading Ltd", "AAA111111111"),
		company("co-b", "Mombasa Cement Ltd", "BBB222222222"),
		company("co-c", "Tusker Holdings", ""),
	}
	docs := []common.DocumentRecord{
		docWithFacts("co-a", "doc-1", identifierFact("XYZ987654321", 0.85)),
		docWithFacts("co-b", "doc-2", identifierFact("XYZ987654321", 0.9), identifierFact("AAA111111111", 0.8)),
		docWithFacts("co-c", "doc-3", common.Fact{
			Kind: common.FactPartyName, NormalizedValue: "MOMBASA CEMENT", RawSpan: "Mombasa Cement Ltd", Confidence: 0.6,
		}),
	}

	first := Build(companies, docs)

	// Same inputs in a different order must yield the same graph.
	shuffled := []common.DocumentRecord{docs[2], docs[0], docs[1]}
	second := Build(companies, shuffled)

	if !reflect.DeepEqual(first.Edges(), second.Edges()) {
		t.Fatalf("graphs differ across input orders:\nfirst:  %+v\nsecond: %+v", first.Edges(), second.Edges())
	}
	if !reflect.DeepEqual(first.Nodes(), second.Nodes()) {
		t.Fatal("node order differs across input orders")
	}
}

func TestBuildRegisteredIdentifierLink(t *testing.T) {
	// co-b never uploaded a document, but co-a's invoice carries co-b's
	// registered tax identifier.
	companies := []common.Company{
		company("co-a", "Acme Trading Ltd", ""),
		company("co-b", "Mombasa Cement Ltd", "BBB222222222"),
	}
	docs := []common.DocumentRecord{
		docWithFacts("co-a", "doc-1", identifierFact("BBB222222222", 0.85)),
	}

	g := Build(companies, docs)
	if len(g.Edges()) != 1 {
		t.Fatalf("expected one edge, got %+v", g.Edges())
	}
}

func TestBuildCounterpartyNameLink(t *testing.T) {
	companies := []common.Company{
		company("co-a", "Acme Trading Ltd", ""),
		company("co-b", "Mombasa Cement Ltd", ""),
	}
	docs := []common.DocumentRecord{
		docWithFacts("co-a", "doc-1", common.Fact{
			Kind: common.FactPartyName, NormalizedValue: "MOMBASA CEMENT", RawSpan: "Mombasa Cement Ltd", Confidence: 0.6,
		}),
	}

	g := Build(companies, docs)
	edges := g.Edges()
	if len(edges) != 1 {
		t.Fatalf("expected one counterparty edge, got %+v", edges)
	}
	if edges[0].Weight != counterpartyWeight {
		t.Fatalf("unexpected weight: got %v, want %v", edges[0].Weight, counterpartyWeight)
	}
}

func TestBuildCapsPerDocumentContribution(t *testing.T) {
	companies := []common.Company{
		company("co-a", "Acme Trading Ltd", ""),
		company("co-b", "Mombasa Cement Ltd", "BBB222222222"),
	}
	// One noisy document repeating the counterpart identifier five times.
	facts := make([]common.Fact, 5)
	for i := range facts {
		facts[i] = identifierFact("BBB222222222", 0.85)
	}
	docs := []common.DocumentRecord{docWithFacts("co-a", "doc-noisy", facts...)}

	g := Build(companies, docs)
	edges := g.Edges()
	if len(edges) != 1 {
		t.Fatalf("expected one edge, got %+v", edges)
	}
	if edges[0].Weight != maxDocumentContribution {
		t.Fatalf("per-document cap not applied: got %v, want %v", edges[0].Weight, maxDocumentContribution)
	}
}

func TestBuildIgnoresLowConfidenceFacts(t *testing.T) {
	companies := []common.Company{
		company("co-a", "Acme Trading Ltd", ""),
		company("co-b", "Mombasa Cement Ltd", ""),
	}
	docs := []common.DocumentRecord{
		docWithFacts("co-a", "doc-1", identifierFact("XYZ987654321", 0.25)),
		docWithFacts("co-b", "doc-2", identifierFact("XYZ987654321", 0.25)),
	}

	g := Build(companies, docs)
	if len(g.Edges()) != 0 {
		t.Fatalf("low-confidence facts must not create edges: %+v", g.Edges())
	}
}

func TestSingleNodeGraph(t *testing.T) {
	companies := []common.Company{company("co-a", "Acme Trading Ltd", "")}
	docs := []common.DocumentRecord{
		docWithFacts("co-a", "doc-1", identifierFact("XYZ987654321", 0.9)),
	}

	g := Build(companies, docs)
	if len(g.Edges()) != 0 {
		t.Fatalf("single company cannot have edges: %+v", g.Edges())
	}

	scores := g.Centrality()
	if len(scores) != 1 {
		t.Fatalf("expected one score, got %d", len(scores))
	}
	s := scores[0]
	if s.Degree != 0 || s.Betweenness != 0 || s.Closeness != 0 || s.Eigenvector != 0 || s.PageRank != 0 {
		t.Fatalf("isolated node must have zero centrality: %+v", s)
	}

	risks := g.Risk(scores)
	if len(risks) != 1 {
		t.Fatalf("expected one risk score, got %d", len(risks))
	}
	want := extractionRiskWeight * (1 - 0.9)
	if math.Abs(risks[0].Score-want) > 1e-9 {
		t.Fatalf("isolated risk must come from extraction confidence alone: got %v, want %v", risks[0].Score, want)
	}
}

func pathGraph(t *testing.T) *Graph {
	t.Helper()
	companies := []common.Company{
		company("co-a", "A", ""),
		company("co-b", "B", ""),
		company("co-c", "C", ""),
	}
	docs := []common.DocumentRecord{
		docWithFacts("co-a", "doc-1", identifierFact("AAA111111111", 0.9)),
		docWithFacts("co-b", "doc-2", identifierFact("AAA111111111", 0.9), identifierFact("CCC333333333", 0.9)),
		docWithFacts("co-c", "doc-3", identifierFact("CCC333333333", 0.9)),
	}
	return Build(companies, docs)
}

func TestCentralityOnPath(t *testing.T) {
	g := pathGraph(t)
	if len(g.Edges()) != 2 {
		t.Fatalf("expected a path of two edges, got %+v", g.Edges())
	}

	scores := g.Centrality()
	byID := make(map[string]common.CentralityScore)
	for _, s := range scores {
		byID[s.CompanyID] = s
	}

	middle, end := byID["co-b"], byID["co-a"]
	if middle.Betweenness != 1 {
		t.Fatalf("middle of a 3-path has betweenness 1, got %v", middle.Betweenness)
	}
	if end.Betweenness != 0 {
		t.Fatalf("path endpoint has betweenness 0, got %v", end.Betweenness)
	}
	if middle.Degree != 1 || end.Degree != 0.5 {
		t.Fatalf("unexpected degree centrality: middle %v, end %v", middle.Degree, end.Degree)
	}
	if middle.Closeness <= end.Closeness {
		t.Fatalf("middle must be closer than endpoints: %v vs %v", middle.Closeness, end.Closeness)
	}
	if middle.Eigenvector != 1 {
		t.Fatalf("component maximum eigenvector is normalized to 1, got %v", middle.Eigenvector)
	}
	if middle.PageRank <= end.PageRank {
		t.Fatalf("middle must outrank endpoints: %v vs %v", middle.PageRank, end.PageRank)
	}
}

func TestCommunitiesSplitDisconnectedComponents(t *testing.T) {
	companies := []common.Company{
		company("co-a", "A", ""), company("co-b", "B", ""),
		company("co-c", "C", ""), company("co-d", "D", ""),
	}
	docs := []common.DocumentRecord{
		docWithFacts("co-a", "doc-1", identifierFact("AAA111111111", 0.9)),
		docWithFacts("co-b", "doc-2", identifierFact("AAA111111111", 0.9)),
		docWithFacts("co-c", "doc-3", identifierFact("CCC333333333", 0.9)),
		docWithFacts("co-d", "doc-4", identifierFact("CCC333333333", 0.9)),
	}

	g := Build(companies, docs)
	assignments := g.Communities()
	if len(assignments) != 4 {
		t.Fatalf("expected four assignments, got %d", len(assignments))
	}

	byID := make(map[string]int)
	for _, a := range assignments {
		byID[a.CompanyID] = a.Community
	}
	if byID["co-a"] != byID["co-b"] {
		t.Fatal("co-a and co-b share an edge and must share a community")
	}
	if byID["co-c"] != byID["co-d"] {
		t.Fatal("co-c and co-d share an edge and must share a community")
	}
	if byID["co-a"] == byID["co-c"] {
		t.Fatal("disconnected components must land in different communities")
	}
}

func TestRiskGrowsWithBridging(t *testing.T) {
	g := pathGraph(t)
	risks := g.Risk(g.Centrality())

	byID := make(map[string]float64)
	for _, r := range risks {
		byID[r.CompanyID] = r.Score
	}
	if byID["co-b"] <= byID["co-a"] {
		t.Fatalf("bridge node must score higher risk: middle %v, end %v", byID["co-b"], byID["co-a"])
	}
	for id, score := range byID {
		if score < 0 || score > 1 {
			t.Fatalf("risk score out of bounds for %s: %v", id, score)
		}
	}
}

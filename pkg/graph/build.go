package graph

import (
	"sort"
	"strings"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/grammar"
)

const (
	// identifierWeight is the edge contribution of one shared-identifier
	// occurrence; counterparty name mentions count for less.
	identifierWeight   = 1.0
	counterpartyWeight = 0.5

	// maxDocumentContribution caps how much weight a single document can add
	// to one edge, so a noisy document cannot dominate the graph.
	maxDocumentContribution = 2.0

	// minLinkConfidence is the builder's own threshold; facts below it are
	// persisted but never create edges.
	minLinkConfidence = 0.3
)

type edgeKey struct {
	a, b string
}

func pairKey(a, b string) edgeKey {
	if b < a {
		a, b = b, a
	}
	return edgeKey{a: a, b: b}
}

type edgeAcc struct {
	weight   float64
	evidence []common.FactRef
	// perDoc tracks weight already attributed per contributing document.
	perDoc map[string]float64
}

// Build constructs the relationship graph from companies and their persisted
// documents. An edge links two companies when one company's documents carry
// an identifier shared with the other company (the same value extracted from
// both sides, or a value registered to the other company), or when a
// document names the other company as a party. Pure and total: identical
// inputs always yield an identical graph.
func Build(companies []common.Company, docs []common.DocumentRecord) *Graph {
	ids := make([]string, 0, len(companies))
	registered := make(map[string]string)
	legalNames := make(map[string]string)
	for _, c := range companies {
		if c.ID == "" {
			continue
		}
		ids = append(ids, c.ID)
		if v := normalizeIdentifier(c.TaxIdentifier); v != "" {
			registered[v] = c.ID
		}
		if v := normalizeIdentifier(c.RegistrationNumber); v != "" {
			registered[v] = c.ID
		}
		if v := grammar.NormalizePartyName(c.LegalName); v != "" {
			legalNames[v] = c.ID
		}
	}
	g := newGraph(ids)

	sorted := append([]common.DocumentRecord(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CompanyID != sorted[j].CompanyID {
			return sorted[i].CompanyID < sorted[j].CompanyID
		}
		return sorted[i].DocumentID < sorted[j].DocumentID
	})

	type occurrence struct {
		ref common.FactRef
	}
	occsByValue := make(map[string][]occurrence)
	var values []string
	acc := make(map[edgeKey]*edgeAcc)

	addContribution := func(a, b string, weight float64, ref common.FactRef) {
		key := pairKey(a, b)
		e := acc[key]
		if e == nil {
			e = &edgeAcc{perDoc: make(map[string]float64)}
			acc[key] = e
		}
		room := maxDocumentContribution - e.perDoc[ref.DocumentID]
		if room <= 0 {
			return
		}
		if weight > room {
			weight = room
		}
		e.perDoc[ref.DocumentID] += weight
		e.weight += weight
		e.evidence = append(e.evidence, ref)
	}

	confSum := make(map[string]float64)
	confCount := make(map[string]int)

	for _, doc := range sorted {
		if _, known := g.index[doc.CompanyID]; !known {
			continue
		}
		for _, fact := range doc.Facts {
			confSum[doc.CompanyID] += fact.Confidence
			confCount[doc.CompanyID]++

			if fact.Confidence < minLinkConfidence {
				continue
			}
			ref := common.FactRef{
				DocumentID:      doc.DocumentID,
				CompanyID:       doc.CompanyID,
				Kind:            fact.Kind,
				NormalizedValue: fact.NormalizedValue,
				Confidence:      fact.Confidence,
			}

			switch {
			case fact.Kind.IsIdentifier():
				value := string(fact.Kind) + "\x00" + fact.NormalizedValue
				if _, seen := occsByValue[value]; !seen {
					values = append(values, value)
				}
				occsByValue[value] = append(occsByValue[value], occurrence{ref: ref})

				// A document carrying an identifier registered to another
				// company is a declared counterparty link on its own.
				if owner, ok := registered[fact.NormalizedValue]; ok && owner != doc.CompanyID {
					addContribution(doc.CompanyID, owner, identifierWeight, ref)
				}
			case fact.Kind == common.FactPartyName:
				if owner, ok := legalNames[fact.NormalizedValue]; ok && owner != doc.CompanyID {
					addContribution(doc.CompanyID, owner, counterpartyWeight, ref)
				}
			}
		}
	}

	// Shared identifiers: the same extracted value under two or more
	// companies links every pair, one contribution per occurrence.
	sort.Strings(values)
	for _, value := range values {
		occs := occsByValue[value]
		byCompany := make(map[string][]occurrence)
		var holders []string
		for _, o := range occs {
			if _, seen := byCompany[o.ref.CompanyID]; !seen {
				holders = append(holders, o.ref.CompanyID)
			}
			byCompany[o.ref.CompanyID] = append(byCompany[o.ref.CompanyID], o)
		}
		if len(holders) < 2 {
			continue
		}
		sort.Strings(holders)
		for i := 0; i < len(holders); i++ {
			for j := i + 1; j < len(holders); j++ {
				for _, o := range byCompany[holders[i]] {
					addContribution(holders[i], holders[j], identifierWeight, o.ref)
				}
				for _, o := range byCompany[holders[j]] {
					addContribution(holders[i], holders[j], identifierWeight, o.ref)
				}
			}
		}
	}

	keys := make([]edgeKey, 0, len(acc))
	for key := range acc {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})
	for _, key := range keys {
		e := acc[key]
		sortEvidence(e.evidence)
		g.addEdge(common.RelationshipEdge{
			CompanyA: key.a,
			CompanyB: key.b,
			Weight:   e.weight,
			Evidence: e.evidence,
		})
	}

	for i, id := range g.nodes {
		if n := confCount[id]; n > 0 {
			g.confidence[i] = confSum[id] / float64(n)
		}
	}
	return g
}

func sortEvidence(refs []common.FactRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].CompanyID != refs[j].CompanyID {
			return refs[i].CompanyID < refs[j].CompanyID
		}
		if refs[i].DocumentID != refs[j].DocumentID {
			return refs[i].DocumentID < refs[j].DocumentID
		}
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].NormalizedValue < refs[j].NormalizedValue
	})
}

func normalizeIdentifier(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

package extract

import (
	"reflect"
	"testing"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/grammar"
)

const invoiceText = "TAX INVOICE\nInvoice No: 2024-001\nBill to: Acme Trading Ltd\n" +
	"PIN: ABC123456789\nAmount due: KSh 45,000.00\nPayment terms: net 30"

func newTestEngine(t *testing.T, version int) *Engine {
	t.Helper()
	return NewEngine(grammar.Default(), version)
}

func TestClassifyAndExtractInvoice(t *testing.T) {
	engine := newTestEngine(t, 1)
	result := engine.ClassifyAndExtract("doc-1", invoiceText, nil)

	if result.DocumentID != "doc-1" {
		t.Fatalf("unexpected document id: %q", result.DocumentID)
	}
	if result.Category != common.CategoryInvoice {
		t.Fatalf("unexpected category: got %q, want %q", result.Category, common.CategoryInvoice)
	}
	if result.NeedsReview {
		t.Fatal("clear invoice should not need review")
	}
	if result.ExtractorVersion != 1 {
		t.Fatalf("unexpected extractor version: %d", result.ExtractorVersion)
	}

	var haveTaxID, haveAmount bool
	for _, f := range result.Facts {
		switch f.Kind {
		case common.FactTaxID:
			haveTaxID = f.NormalizedValue == "ABC123456789"
		case common.FactAmount:
			haveAmount = f.NormalizedValue == "KES:4500000"
		}
	}
	if !haveTaxID || !haveAmount {
		t.Fatalf("missing expected facts: %+v", result.Facts)
	}
}

func TestClassifyAndExtractIsIdempotent(t *testing.T) {
	engine := newTestEngine(t, 2)

	first := engine.ClassifyAndExtract("doc-1", invoiceText, nil)
	second := engine.ClassifyAndExtract("doc-1", invoiceText, nil)

	if !reflect.DeepEqual(first.Facts, second.Facts) {
		t.Fatalf("fact lists differ between runs:\nfirst:  %+v\nsecond: %+v", first.Facts, second.Facts)
	}
	if first.Category != second.Category || first.CategoryConfidence != second.CategoryConfidence {
		t.Fatal("classification differs between runs")
	}
}

func TestClassificationTieResolvesToOther(t *testing.T) {
	engine := newTestEngine(t, 1)
	result := engine.ClassifyAndExtract("doc-1", "invoice receipt", nil)

	if result.Category != common.CategoryOther {
		t.Fatalf("tie must resolve to other, got %q", result.Category)
	}
	if !result.NeedsReview {
		t.Fatal("tie must flag the document for review")
	}
	if result.CategoryConfidence <= 0 {
		t.Fatalf("tie keeps the top score as confidence, got %v", result.CategoryConfidence)
	}
}

func TestClassificationGapEqualToMarginIsTie(t *testing.T) {
	// Dyadic weights and scale keep the scores exact: 1.0 vs 0.75 over four
	// words at scale 4, a gap of exactly the 0.25 margin.
	rulesYAML := `
version: 1
currency:
  default_code: KES
  markers:
    - spelling: "KES"
      code: KES
parties:
  base_confidence: 0.6
  cues: ["SUPPLIER"]
classification:
  scale: 4
  tie_margin: 0.25
  categories:
    invoice:
      keywords:
        - { phrase: "alpha", weight: 1 }
    receipt:
      keywords:
        - { phrase: "beta", weight: 0.75 }
`
	rules, err := grammar.Load([]byte(rulesYAML))
	if err != nil {
		t.Fatalf("failed to load rule set: %v", err)
	}
	engine := NewEngine(rules, 1)

	category, confidence, needsReview := engine.classify("alpha beta pad pad")
	if category != common.CategoryOther {
		t.Fatalf("gap equal to the margin must resolve to other, got %q", category)
	}
	if !needsReview {
		t.Fatal("boundary tie must flag the document for review")
	}
	if confidence != 1.0 {
		t.Fatalf("tie keeps the top score as confidence, got %v", confidence)
	}
}

func TestClassificationWithoutKeywords(t *testing.T) {
	engine := newTestEngine(t, 1)

	for _, text := range []string{"", "completely unrelated text about nothing"} {
		result := engine.ClassifyAndExtract("doc-1", text, nil)
		if result.Category != common.CategoryOther {
			t.Fatalf("text %q: got category %q, want other", text, result.Category)
		}
		if result.CategoryConfidence != 0 {
			t.Fatalf("text %q: got confidence %v, want 0", text, result.CategoryConfidence)
		}
		if !result.NeedsReview {
			t.Fatalf("text %q: expected review flag", text)
		}
	}
}

func TestConfidenceBounds(t *testing.T) {
	engine := newTestEngine(t, 1)
	texts := []string{
		invoiceText,
		"Pay KSh 1,200 USD now",
		"Subtotal 2,500.00 PIN: ABC1234S6789",
		"invoice receipt tender",
		"",
	}

	for _, text := range texts {
		result := engine.ClassifyAndExtract("doc-1", text, nil)
		if result.CategoryConfidence < 0 || result.CategoryConfidence > 1 {
			t.Fatalf("category confidence out of bounds for %q: %v", text, result.CategoryConfidence)
		}
		for _, f := range result.Facts {
			if f.Confidence < 0 || f.Confidence > 1 {
				t.Fatalf("fact confidence out of bounds for %q: %+v", text, f)
			}
			if f.Confidence < minFactConfidence {
				t.Fatalf("fact below confidence floor attached for %q: %+v", text, f)
			}
		}
	}
}

func TestHintSpansAddParties(t *testing.T) {
	engine := newTestEngine(t, 1)
	rawText := "Payment from Mombasa Cement"
	hints := []EntitySpan{
		{Start: 13, End: 27, Label: "org"},
		{Start: 0, End: 7, Label: "date"},    // non-party labels are ignored
		{Start: 50, End: 60, Label: "party"}, // out of range
	}

	result := engine.ClassifyAndExtract("doc-1", rawText, hints)

	var parties []common.Fact
	for _, f := range result.Facts {
		if f.Kind == common.FactPartyName {
			parties = append(parties, f)
		}
	}
	if len(parties) != 1 {
		t.Fatalf("expected one hinted party fact, got %d: %+v", len(parties), parties)
	}
	if parties[0].NormalizedValue != "MOMBASA CEMENT" {
		t.Fatalf("unexpected party value: %q", parties[0].NormalizedValue)
	}
	if parties[0].Confidence != hintConfidence {
		t.Fatalf("unexpected hint confidence: %v", parties[0].Confidence)
	}
}

func TestHintsNeverOverrideGrammar(t *testing.T) {
	engine := newTestEngine(t, 1)
	rawText := "PIN: ABC123456789"

	// The hint overlaps the grammar's tax_id span and must be dropped.
	withHint := engine.ClassifyAndExtract("doc-1", rawText, []EntitySpan{{Start: 5, End: 17, Label: "org"}})
	without := engine.ClassifyAndExtract("doc-1", rawText, nil)

	if !reflect.DeepEqual(withHint.Facts, without.Facts) {
		t.Fatalf("overlapping hint changed the fact list:\nwith:    %+v\nwithout: %+v", withHint.Facts, without.Facts)
	}
}

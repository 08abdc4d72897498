package grammar

import (
	"reflect"
	"testing"

	"github.com/sokograph/backend/pkg/common"
)

func factsOfKind(facts []CandidateFact, kind common.FactKind) []CandidateFact {
	var out []CandidateFact
	for _, f := range facts {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestMatchInvoiceLine(t *testing.T) {
	facts := Default().Match("Total: KSh 1,234.56 PIN: ABC123456789")

	amounts := factsOfKind(facts, common.FactAmount)
	if len(amounts) != 1 {
		t.Fatalf("expected one amount fact, got %d", len(amounts))
	}
	if amounts[0].NormalizedValue != "KES:123456" {
		t.Fatalf("unexpected amount value: got %q, want %q", amounts[0].NormalizedValue, "KES:123456")
	}
	if amounts[0].Confidence < 0.8 {
		t.Fatalf("amount confidence too low: %v", amounts[0].Confidence)
	}

	taxIDs := factsOfKind(facts, common.FactTaxID)
	if len(taxIDs) != 1 {
		t.Fatalf("expected one tax_id fact, got %d", len(taxIDs))
	}
	if taxIDs[0].NormalizedValue != "ABC123456789" {
		t.Fatalf("unexpected tax_id value: got %q", taxIDs[0].NormalizedValue)
	}
	if taxIDs[0].Confidence < 0.8 {
		t.Fatalf("tax_id confidence too low: %v", taxIDs[0].Confidence)
	}
}

func TestMatchDeterminism(t *testing.T) {
	text := "TAX INVOICE No. KRA/INV-2024-001 dated 12/03/2024\n" +
		"Supplier: Acme Trading Ltd PIN: ABC123456789\n" +
		"Amount due: KShs 45,000/= Reg: CPR/2015/123456"

	first := Default().Match(text)
	second := Default().Match(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("matching is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if len(first) == 0 {
		t.Fatal("expected candidates from mixed document text")
	}
}

func TestOverlapResolvedByKindPriority(t *testing.T) {
	// The procurement reference contains a date-shaped run; the identifier
	// wins the overlap regardless of the date rule's confidence.
	facts := Default().Match("Tender Ref: AB/12/12/2024")

	codes := factsOfKind(facts, common.FactGovernmentCode)
	if len(codes) != 1 {
		t.Fatalf("expected one government_code fact, got %d: %+v", len(codes), facts)
	}
	if codes[0].NormalizedValue != "AB/12/12/2024" {
		t.Fatalf("unexpected government_code value: %q", codes[0].NormalizedValue)
	}
	if dates := factsOfKind(facts, common.FactDate); len(dates) != 0 {
		t.Fatalf("date fact should have lost the overlap: %+v", dates)
	}
}

func TestFuzzyIdentifierRepairsOCRNoise(t *testing.T) {
	// "S" misread inside the digit body of a PIN.
	facts := Default().Match("PIN: ABC1234S6789")

	taxIDs := factsOfKind(facts, common.FactTaxID)
	if len(taxIDs) != 1 {
		t.Fatalf("expected one repaired tax_id fact, got %d: %+v", len(taxIDs), facts)
	}
	got := taxIDs[0]
	if got.NormalizedValue != "ABC123456789" {
		t.Fatalf("unexpected repaired value: got %q, want %q", got.NormalizedValue, "ABC123456789")
	}
	if got.RawSpan != "ABC1234S6789" {
		t.Fatalf("raw span should keep the original text: got %q", got.RawSpan)
	}
	if got.Confidence >= 0.85 {
		t.Fatalf("fuzzy match must score below an exact match: %v", got.Confidence)
	}
}

func TestFuzzyNeverMatchesBeyondMaxLength(t *testing.T) {
	// Long whitespace-free numeric runs must never be pulled in.
	facts := Default().Match("PIN: ABC1234S67891234567")
	if ids := factsOfKind(facts, common.FactTaxID); len(ids) != 0 {
		t.Fatalf("over-length span must not fuzzy-match: %+v", ids)
	}
}

func TestMatchDates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "day first numeric", text: "Dated 12/03/2024", want: "2024-03-12"},
		{name: "iso", text: "As of 2024-03-12", want: "2024-03-12"},
		{name: "day month year", text: "Signed 12 Mar 2024", want: "2024-03-12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates := factsOfKind(Default().Match(tt.text), common.FactDate)
			if len(dates) != 1 {
				t.Fatalf("expected one date fact, got %d", len(dates))
			}
			if dates[0].NormalizedValue != tt.want {
				t.Fatalf("unexpected date: got %q, want %q", dates[0].NormalizedValue, tt.want)
			}
		})
	}
}

func TestMatchParties(t *testing.T) {
	facts := Default().Match("Supplier: Acme Trading Ltd")

	parties := factsOfKind(facts, common.FactPartyName)
	if len(parties) == 0 {
		t.Fatal("expected a party fact")
	}
	if parties[0].NormalizedValue != "ACME TRADING" {
		t.Fatalf("unexpected party value: got %q, want %q", parties[0].NormalizedValue, "ACME TRADING")
	}
}

func TestNormalizePartyName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "Acme Trading Ltd", want: "ACME TRADING"},
		{raw: "  mombasa   cement limited ", want: "MOMBASA CEMENT"},
		{raw: "Tusker Holdings", want: "TUSKER HOLDINGS"},
		{raw: "Kilifi Millers Co.", want: "KILIFI MILLERS"},
	}

	for _, tt := range tests {
		if got := NormalizePartyName(tt.raw); got != tt.want {
			t.Fatalf("NormalizePartyName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestLoadRejectsInvalidRuleSets(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing version", yaml: "currency:\n  default_code: KES\n"},
		{name: "non identifier kind", yaml: "version: 1\nidentifiers:\n  - kind: amount\n    name: bad\n    pattern: \"[0-9]+\"\n    min_length: 1\n    max_length: 4\n"},
		{name: "bad length bounds", yaml: "version: 1\nidentifiers:\n  - kind: tax_id\n    name: bad\n    pattern: \"[0-9]+\"\n    min_length: 5\n    max_length: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.yaml)); err == nil {
				t.Fatal("expected load error")
			}
		})
	}
}

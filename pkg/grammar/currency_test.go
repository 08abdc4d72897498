package grammar

import (
	"testing"

	"github.com/sokograph/backend/pkg/common"
)

func TestMatchAmounts(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		wantValue      string
		wantConfidence float64
	}{
		{
			name:           "prefix marker",
			text:           "Total KSh 1,234.56",
			wantValue:      "KES:123456",
			wantConfidence: confAmountMarked,
		},
		{
			name:           "long marker wins over short",
			text:           "KShs 45,000 payable",
			wantValue:      "KES:4500000",
			wantConfidence: confAmountMarked,
		},
		{
			name:           "shilling suffix",
			text:           "Pay 1,200/= on delivery",
			wantValue:      "KES:120000",
			wantConfidence: confAmountMarked,
		},
		{
			name:           "dollar marker",
			text:           "USD 50.00 per unit",
			wantValue:      "USD:5000",
			wantConfidence: confAmountMarked,
		},
		{
			name:           "conflicting markers",
			text:           "Pay KSh 1,200 USD now",
			wantValue:      "KES:120000",
			wantConfidence: confAmountConflict,
		},
		{
			name:           "stray preceding marker",
			text:           "KSh USD 1,200",
			wantValue:      "USD:120000",
			wantConfidence: confAmountConflict,
		},
		{
			name:           "unmarked money shaped",
			text:           "Subtotal 2,500.00",
			wantValue:      "KES:250000",
			wantConfidence: confAmountUnmarked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amounts := factsOfKind(Default().Match(tt.text), common.FactAmount)
			if len(amounts) != 1 {
				t.Fatalf("expected one amount fact, got %d: %+v", len(amounts), amounts)
			}
			if amounts[0].NormalizedValue != tt.wantValue {
				t.Fatalf("unexpected value: got %q, want %q", amounts[0].NormalizedValue, tt.wantValue)
			}
			if amounts[0].Confidence != tt.wantConfidence {
				t.Fatalf("unexpected confidence: got %v, want %v", amounts[0].Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestAmbiguousAmountsNeverExceedHalf(t *testing.T) {
	texts := []string{
		"Pay KSh 1,200 USD now",
		"Subtotal 2,500.00",
	}
	for _, text := range texts {
		for _, f := range factsOfKind(Default().Match(text), common.FactAmount) {
			if f.Confidence > 0.5 {
				t.Fatalf("ambiguous amount %q scored %v, want <= 0.5", f.RawSpan, f.Confidence)
			}
		}
	}
}

func TestBareNumbersAreNotAmounts(t *testing.T) {
	texts := []string{
		"Serial 123456789",
		"Page 12 of 30",
		"Dated 12.12.2024",
	}
	for _, text := range texts {
		if amounts := factsOfKind(Default().Match(text), common.FactAmount); len(amounts) != 0 {
			t.Fatalf("text %q produced unexpected amounts: %+v", text, amounts)
		}
	}
}

func TestAmountRoundTrip(t *testing.T) {
	tests := []struct {
		normalized string
		display    string
	}{
		{normalized: "KES:123456", display: "KES 1,234.56"},
		{normalized: "USD:5000", display: "USD 50.00"},
		{normalized: "KES:100000000", display: "KES 1,000,000.00"},
		{normalized: "KES:5", display: "KES 0.05"},
	}

	for _, tt := range tests {
		display, err := DenormalizeAmount(tt.normalized)
		if err != nil {
			t.Fatalf("DenormalizeAmount(%q): %v", tt.normalized, err)
		}
		if display != tt.display {
			t.Fatalf("DenormalizeAmount(%q) = %q, want %q", tt.normalized, display, tt.display)
		}

		code, minor, err := ParseAmount(tt.normalized)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tt.normalized, err)
		}
		if NormalizeAmount(code, minor) != tt.normalized {
			t.Fatalf("round trip broke for %q", tt.normalized)
		}
	}
}

func TestParseMinorUnits(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{raw: "1,234.56", want: 123456},
		{raw: "1,234", want: 123400},
		{raw: "1234.5", want: 123450},
		{raw: "0.99", want: 99},
	}

	for _, tt := range tests {
		got, err := parseMinorUnits(tt.raw)
		if err != nil {
			t.Fatalf("parseMinorUnits(%q): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("parseMinorUnits(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

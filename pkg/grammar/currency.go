package grammar

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sokograph/backend/pkg/common"
)

// Amount match confidences. A clear single marker scores high; a missing or
// conflicting marker drops the candidate to ambiguous territory but never
// below the floor downstream consumers filter on.
const (
	confAmountMarked    = 0.9
	confAmountConflict  = 0.5
	confAmountUnmarked  = 0.45
	markerLookbackChars = 8
)

func compileAmountRegexp(spec currencySpec) *regexp.Regexp {
	prefix := markerAlternation(spec.Markers)
	suffix := markerAlternation(append(append([]markerSpec{}, spec.Markers...), spec.SuffixMarkers...))

	// Either a marked amount or a money-shaped bare number (grouped
	// thousands or a two-digit decimal tail).
	pattern := `(?i)(?:\b(` + prefix + `)\s*)?` +
		`((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?)` +
		`(?:\s*(` + suffix + `))?`
	return regexp.MustCompile(pattern)
}

func markerAlternation(markers []markerSpec) string {
	spellings := make([]string, 0, len(markers))
	for _, m := range markers {
		spellings = append(spellings, m.Spelling)
	}
	// Longest first so "KSHS" wins over "KSH".
	sort.Slice(spellings, func(i, j int) bool { return len(spellings[i]) > len(spellings[j]) })
	quoted := make([]string, len(spellings))
	for i, s := range spellings {
		quoted[i] = regexp.QuoteMeta(s)
	}
	return strings.Join(quoted, "|")
}

func (rs *RuleSet) markerCode(spelling string) string {
	return rs.markerCodes[strings.ToUpper(spelling)]
}

// precedingMarkerCode scans a short window before start for a stray currency
// marker that the amount regex did not consume, e.g. "KSh USD 1,200".
func (rs *RuleSet) precedingMarkerCode(text string, start int) string {
	lo := start - markerLookbackChars
	if lo < 0 {
		lo = 0
	}
	window := strings.ToUpper(text[lo:start])
	best := ""
	bestPos := -1
	for spelling, code := range rs.markerCodes {
		if idx := strings.LastIndex(window, spelling); idx > bestPos {
			bestPos = idx
			best = code
		}
	}
	return best
}

func moneyShaped(digits string) bool {
	return strings.Contains(digits, ",") ||
		(strings.Contains(digits, ".") && len(digits)-strings.Index(digits, ".") == 3)
}

func (rs *RuleSet) matchAmounts(text string) []CandidateFact {
	var out []CandidateFact
	for _, m := range rs.amountRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		prefCode, sufCode := "", ""
		if m[2] >= 0 {
			prefCode = rs.markerCode(text[m[2]:m[3]])
		}
		digits := text[m[4]:m[5]]
		if m[6] >= 0 {
			sufCode = rs.markerCode(text[m[6]:m[7]])
		}

		code := rs.currency.DefaultCode
		confidence := confAmountUnmarked
		switch {
		case prefCode != "" && sufCode != "" && prefCode != sufCode:
			// Conflicting markers around one span.
			confidence = confAmountConflict
		case prefCode != "":
			code = prefCode
			confidence = confAmountMarked
		case sufCode != "":
			code = sufCode
			confidence = confAmountMarked
		default:
			if !moneyShaped(digits) {
				continue
			}
			// An unmarked money-shaped span glued to more digits by a date
			// separator is a date fragment, not an amount.
			if isDateFragment(text, start, end) {
				continue
			}
		}

		// A different marker just before an already-marked span also makes
		// the amount ambiguous ("KSh USD 1,200").
		if confidence == confAmountMarked {
			if stray := rs.precedingMarkerCode(text, start); stray != "" && stray != code {
				confidence = confAmountConflict
			}
		}

		minor, err := parseMinorUnits(digits)
		if err != nil {
			continue
		}
		out = append(out, CandidateFact{
			Kind:            common.FactAmount,
			NormalizedValue: NormalizeAmount(code, minor),
			RawSpan:         text[start:end],
			Start:           start,
			End:             end,
			Confidence:      confidence,
		})
	}
	return out
}

func isDateFragment(text string, start, end int) bool {
	if end+1 < len(text) && isDateSeparator(text[end]) && isASCIIDigit(text[end+1]) {
		return true
	}
	if start >= 2 && isDateSeparator(text[start-1]) && isASCIIDigit(text[start-2]) {
		return true
	}
	return false
}

func isDateSeparator(b byte) bool {
	return b == '.' || b == '/' || b == '-'
}

func isASCIIDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// parseMinorUnits converts a display amount like "1,234.56" to the canonical
// minor-unit integer 123456.
func parseMinorUnits(digits string) (int64, error) {
	digits = strings.ReplaceAll(digits, ",", "")
	whole, frac, _ := strings.Cut(digits, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", digits, err)
	}
	switch len(frac) {
	case 0:
		return units * 100, nil
	case 1:
		frac += "0"
	case 2:
	default:
		return 0, fmt.Errorf("invalid amount fraction %q", digits)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount fraction %q: %w", digits, err)
	}
	return units*100 + cents, nil
}

// NormalizeAmount renders the canonical normalized value for an amount fact:
// currency code and minor-unit integer joined by a colon, e.g. "KES:123456".
func NormalizeAmount(code string, minorUnits int64) string {
	return fmt.Sprintf("%s:%d", code, minorUnits)
}

// ParseAmount splits a normalized amount value back into currency code and
// minor units.
func ParseAmount(normalized string) (string, int64, error) {
	code, minor, ok := strings.Cut(normalized, ":")
	if !ok || code == "" {
		return "", 0, fmt.Errorf("malformed amount value %q", normalized)
	}
	units, err := strconv.ParseInt(minor, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed amount value %q: %w", normalized, err)
	}
	return code, units, nil
}

// DenormalizeAmount renders a normalized amount back to display form with
// grouped thousands, e.g. "KES:123456" -> "KES 1,234.56". Round-tripping a
// valid input through NormalizeAmount and back preserves the value modulo
// separators and marker casing.
func DenormalizeAmount(normalized string) (string, error) {
	code, minor, err := ParseAmount(normalized)
	if err != nil {
		return "", err
	}
	units := minor / 100
	cents := minor % 100
	return fmt.Sprintf("%s %s.%02d", code, groupThousands(units), cents), nil
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

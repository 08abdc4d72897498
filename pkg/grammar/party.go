package grammar

import (
	"regexp"
	"strings"

	"github.com/sokograph/backend/pkg/common"
)

// compilePartyRegexp builds the cue-anchored party-name capture. A party
// mention is a cue word followed by a run of capitalized words, optionally
// ending in a company suffix.
func compilePartyRegexp(spec partySpec) *regexp.Regexp {
	cues := make([]string, 0, len(spec.Cues))
	for _, c := range spec.Cues {
		cues = append(cues, regexp.QuoteMeta(c))
	}
	pattern := `(?i)\b(?:` + strings.Join(cues, "|") + `)\.?\s*[:.]?\s+` +
		`((?:[A-Z][A-Za-z&'-]*)(?:\s+(?:[A-Z][A-Za-z&'-]*|of|and|&)){0,5}` +
		`(?:\s+(?:Ltd|Limited|PLC|LLP|Co|Company|Enterprises|Holdings|Group)\.?)?)`
	return regexp.MustCompile(pattern)
}

func (rs *RuleSet) matchParties(text string) []CandidateFact {
	var out []CandidateFact
	for _, m := range rs.partyRe.FindAllStringSubmatchIndex(text, -1) {
		if m[2] < 0 {
			continue
		}
		raw := text[m[2]:m[3]]
		out = append(out, CandidateFact{
			Kind:            common.FactPartyName,
			NormalizedValue: NormalizePartyName(raw),
			RawSpan:         raw,
			Start:           m[2],
			End:             m[3],
			Confidence:      rs.partyConfidence,
		})
	}
	return out
}

// NormalizePartyName canonicalizes a party mention for cross-document
// comparison: uppercase, collapsed whitespace, trailing punctuation and the
// legal-form suffix dropped.
func NormalizePartyName(raw string) string {
	name := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	name = strings.TrimRight(name, ".,;")
	for _, suffix := range []string{" LIMITED", " LTD", " PLC", " LLP", " COMPANY", " CO"} {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	return strings.TrimSpace(name)
}

package grammar

import (
	"regexp"

	"github.com/araddon/dateparse"

	"github.com/sokograph/backend/pkg/common"
)

// dateRegexps returns the candidate date shapes the grammar recognizes.
// Parsing and normalization is delegated to dateparse with day-first
// preference, matching how local documents write dates.
func dateRegexps() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?,?\s+\d{4}\b`),
		regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}\b`),
	}
}

func (rs *RuleSet) matchDates(text string) []CandidateFact {
	var out []CandidateFact
	claimed := make(map[int]bool)
	for _, re := range rs.dateRes {
		for _, m := range re.FindAllStringIndex(text, -1) {
			if claimed[m[0]] {
				continue
			}
			raw := text[m[0]:m[1]]
			parsed, err := dateparse.ParseAny(raw, dateparse.PreferMonthFirst(false))
			if err != nil {
				continue
			}
			claimed[m[0]] = true
			out = append(out, CandidateFact{
				Kind:            common.FactDate,
				NormalizedValue: parsed.Format("2006-01-02"),
				RawSpan:         raw,
				Start:           m[0],
				End:             m[1],
				Confidence:      rs.dateConfidence,
			})
		}
	}
	return out
}

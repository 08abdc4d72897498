package grammar

import "github.com/sokograph/backend/pkg/common"

// CategoryKeyword is one weighted classification cue.
type CategoryKeyword struct {
	Phrase string
	Weight float64
}

// ClassificationScale converts keyword density into a confidence score.
func (rs *RuleSet) ClassificationScale() float64 {
	return rs.classification.Scale
}

// TieMargin is the score gap below which two top categories count as a tie.
func (rs *RuleSet) TieMargin() float64 {
	return rs.classification.TieMargin
}

// CategoryKeywords returns the weighted keyword table per category.
func (rs *RuleSet) CategoryKeywords() map[common.Category][]CategoryKeyword {
	out := make(map[common.Category][]CategoryKeyword, len(rs.classification.Categories))
	for name, spec := range rs.classification.Categories {
		kws := make([]CategoryKeyword, 0, len(spec.Keywords))
		for _, kw := range spec.Keywords {
			kws = append(kws, CategoryKeyword{Phrase: kw.Phrase, Weight: kw.Weight})
		}
		out[common.Category(name)] = kws
	}
	return out
}

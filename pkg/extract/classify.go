package extract

import (
	"sort"
	"strings"

	"github.com/sokograph/backend/pkg/common"
)

type categoryScore struct {
	category common.Category
	score    float64
}

// classify scores every category as a weighted keyword-hit sum normalized by
// document length. Two categories within the tie margin of the top score
// resolve to "other" with the top score as confidence, flagging the document
// for review instead of guessing.
func (e *Engine) classify(rawText string) (common.Category, float64, bool) {
	lower := strings.ToLower(rawText)
	words := len(strings.Fields(lower))
	if words == 0 {
		return common.CategoryOther, 0, true
	}

	scale := e.rules.ClassificationScale()
	scores := make([]categoryScore, 0, len(e.keywords))
	for category, kws := range e.keywords {
		raw := 0.0
		for _, kw := range kws {
			raw += kw.Weight * float64(strings.Count(lower, kw.Phrase))
		}
		score := raw / float64(words) * scale
		if score > 1 {
			score = 1
		}
		scores = append(scores, categoryScore{category: category, score: score})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].category < scores[j].category
	})

	top := scores[0]
	if top.score == 0 {
		return common.CategoryOther, 0, true
	}
	if len(scores) > 1 && top.score-scores[1].score <= e.rules.TieMargin() {
		return common.CategoryOther, top.score, true
	}
	return top.category, top.score, false
}

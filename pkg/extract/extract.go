// Package extract turns raw document text into a classified, confidence-
// scored ExtractionResult using the pattern grammar. It has no side effects;
// persistence belongs to the coordinator.
package extract

import (
	"time"

	"github.com/sokograph/backend/pkg/common"
	"github.com/sokograph/backend/pkg/grammar"
)

// minFactConfidence is the floor below which grammar candidates are not
// attached to the result. Low-confidence facts above the floor are kept, not
// discarded; downstream consumers apply their own thresholds.
const minFactConfidence = 0.2

// hintConfidence is assigned to facts taken from model-suggested entity
// spans that the grammar itself did not cover.
const hintConfidence = 0.55

// EntitySpan is an optional model-suggested span from an upstream OCR/NLP
// backend. The engine works correctly with none.
type EntitySpan struct {
	Start int
	End   int
	Label string
}

// Engine classifies documents and extracts facts. An Engine is immutable and
// safe for concurrent use; its version stamps every result it produces.
type Engine struct {
	rules    *grammar.RuleSet
	keywords map[common.Category][]grammar.CategoryKeyword
	version  int
}

// NewEngine builds an engine over the given rule set. The extractor version
// must increase whenever rules or engine behavior change, since the
// persistence layer rejects rewrites that do not raise it.
func NewEngine(rules *grammar.RuleSet, version int) *Engine {
	return &Engine{
		rules:    rules,
		keywords: rules.CategoryKeywords(),
		version:  version,
	}
}

// Version returns the extractor version stamped on results.
func (e *Engine) Version() int {
	return e.version
}

// ClassifyAndExtract produces the extraction result for one document.
// Calling it twice with the same input and version yields an identical fact
// list; only ExtractionTime differs.
func (e *Engine) ClassifyAndExtract(documentID, rawText string, hints []EntitySpan) common.ExtractionResult {
	category, confidence, needsReview := e.classify(rawText)

	candidates := e.rules.Match(rawText)
	facts := make([]common.Fact, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence < minFactConfidence {
			continue
		}
		facts = append(facts, common.Fact{
			Kind:            c.Kind,
			NormalizedValue: c.NormalizedValue,
			RawSpan:         c.RawSpan,
			Confidence:      c.Confidence,
		})
	}

	facts = append(facts, e.hintFacts(rawText, hints, candidates)...)

	return common.ExtractionResult{
		DocumentID:         documentID,
		Category:           category,
		CategoryConfidence: confidence,
		NeedsReview:        needsReview,
		Facts:              facts,
		ExtractionTime:     time.Now().UTC(),
		ExtractorVersion:   e.version,
	}
}

// hintFacts converts model-suggested party spans into facts when the grammar
// produced nothing overlapping. Hints only ever add facts; they never change
// what the grammar found, so results stay deterministic per input.
func (e *Engine) hintFacts(rawText string, hints []EntitySpan, covered []grammar.CandidateFact) []common.Fact {
	var out []common.Fact
	for _, h := range hints {
		if h.Label != "party" && h.Label != "org" {
			continue
		}
		if h.Start < 0 || h.End > len(rawText) || h.Start >= h.End {
			continue
		}
		overlapped := false
		for _, c := range covered {
			if h.Start < c.End && c.Start < h.End {
				overlapped = true
				break
			}
		}
		if overlapped {
			continue
		}
		raw := rawText[h.Start:h.End]
		out = append(out, common.Fact{
			Kind:            common.FactPartyName,
			NormalizedValue: grammar.NormalizePartyName(raw),
			RawSpan:         raw,
			Confidence:      hintConfidence,
		})
	}
	return out
}

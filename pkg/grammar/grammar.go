// Package grammar implements the declarative pattern grammar used to pull
// typed, confidence-scored facts out of extracted document text. Matching is
// a pure function of the input text and the loaded rule-set version: the same
// text always yields the same candidates in the same order.
package grammar

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sokograph/backend/pkg/common"
)

//go:embed rules.yaml
var embeddedRules []byte

// CandidateFact is a single match produced by the grammar before the
// extraction engine applies its confidence floor.
type CandidateFact struct {
	Kind            common.FactKind
	NormalizedValue string
	RawSpan         string
	Start           int
	End             int
	Confidence      float64
}

type markerSpec struct {
	Spelling string `yaml:"spelling"`
	Code     string `yaml:"code"`
}

type currencySpec struct {
	DefaultCode   string       `yaml:"default_code"`
	Markers       []markerSpec `yaml:"markers"`
	SuffixMarkers []markerSpec `yaml:"suffix_markers"`
}

type identifierSpec struct {
	Kind           string   `yaml:"kind"`
	Name           string   `yaml:"name"`
	Pattern        string   `yaml:"pattern"`
	MinLength      int      `yaml:"min_length"`
	MaxLength      int      `yaml:"max_length"`
	BaseConfidence float64  `yaml:"base_confidence"`
	Cues           []string `yaml:"cues"`
}

type dateSpec struct {
	BaseConfidence float64 `yaml:"base_confidence"`
}

type partySpec struct {
	BaseConfidence float64  `yaml:"base_confidence"`
	Cues           []string `yaml:"cues"`
}

type keywordSpec struct {
	Phrase string  `yaml:"phrase"`
	Weight float64 `yaml:"weight"`
}

type categorySpec struct {
	Keywords []keywordSpec `yaml:"keywords"`
}

type classificationSpec struct {
	Scale      float64                 `yaml:"scale"`
	TieMargin  float64                 `yaml:"tie_margin"`
	Categories map[string]categorySpec `yaml:"categories"`
}

type ruleFile struct {
	Version        int                `yaml:"version"`
	Currency       currencySpec       `yaml:"currency"`
	Identifiers    []identifierSpec   `yaml:"identifiers"`
	Dates          dateSpec           `yaml:"dates"`
	Parties        partySpec          `yaml:"parties"`
	Classification classificationSpec `yaml:"classification"`
}

// identifierRule is an identifier spec with its pattern compiled. The
// anchored form is used for fuzzy token repair, where the whole token must
// match the identifier shape.
type identifierRule struct {
	spec     identifierSpec
	kind     common.FactKind
	re       *regexp.Regexp
	anchored *regexp.Regexp
}

// RuleSet is a compiled, immutable grammar. Compile once, share freely.
type RuleSet struct {
	Version int

	currency    currencySpec
	markerCodes map[string]string
	amountRe    *regexp.Regexp

	identifiers []identifierRule

	dateConfidence float64
	dateRes        []*regexp.Regexp

	partyConfidence float64
	partyRe         *regexp.Regexp

	classification classificationSpec
}

var (
	defaultOnce sync.Once
	defaultSet  *RuleSet
	defaultErr  error
)

// Default returns the rule set compiled from the embedded rules.yaml.
func Default() *RuleSet {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Load(embeddedRules)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("grammar: embedded rule set is invalid: %v", defaultErr))
	}
	return defaultSet
}

// Load parses and compiles a YAML rule set.
func Load(data []byte) (*RuleSet, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rule set: %w", err)
	}
	if rf.Version <= 0 {
		return nil, fmt.Errorf("rule set version must be positive, got %d", rf.Version)
	}

	rs := &RuleSet{
		Version:         rf.Version,
		currency:        rf.Currency,
		markerCodes:     make(map[string]string),
		dateConfidence:  rf.Dates.BaseConfidence,
		partyConfidence: rf.Parties.BaseConfidence,
		classification:  rf.Classification,
	}

	for _, m := range append(append([]markerSpec{}, rf.Currency.Markers...), rf.Currency.SuffixMarkers...) {
		if m.Spelling == "" || m.Code == "" {
			return nil, fmt.Errorf("currency marker needs spelling and code: %+v", m)
		}
		rs.markerCodes[strings.ToUpper(m.Spelling)] = m.Code
	}
	rs.amountRe = compileAmountRegexp(rf.Currency)

	for _, spec := range rf.Identifiers {
		kind := common.FactKind(spec.Kind)
		if !kind.IsIdentifier() {
			return nil, fmt.Errorf("identifier rule %q has non-identifier kind %q", spec.Name, spec.Kind)
		}
		if spec.MaxLength <= 0 || spec.MinLength <= 0 || spec.MaxLength < spec.MinLength {
			return nil, fmt.Errorf("identifier rule %q has invalid length bounds", spec.Name)
		}
		re, err := regexp.Compile(`\b` + spec.Pattern + `\b`)
		if err != nil {
			return nil, fmt.Errorf("identifier rule %q pattern: %w", spec.Name, err)
		}
		anchored, err := regexp.Compile(`^(?:` + spec.Pattern + `)$`)
		if err != nil {
			return nil, fmt.Errorf("identifier rule %q anchored pattern: %w", spec.Name, err)
		}
		rs.identifiers = append(rs.identifiers, identifierRule{
			spec:     spec,
			kind:     kind,
			re:       re,
			anchored: anchored,
		})
	}

	rs.dateRes = dateRegexps()
	rs.partyRe = compilePartyRegexp(rf.Parties)

	return rs, nil
}

// kindPriority orders fact kinds for span-overlap resolution. Lower wins.
// Identifiers beat amounts beat dates beat names, independent of confidence,
// so resolution stays deterministic.
func kindPriority(k common.FactKind) int {
	switch k {
	case common.FactTaxID:
		return 0
	case common.FactRegistrationRef:
		return 1
	case common.FactGovernmentCode:
		return 2
	case common.FactAmount:
		return 3
	case common.FactDate:
		return 4
	case common.FactPartyName:
		return 5
	}
	return 6
}

// Match runs every rule over rawText and returns the surviving candidates,
// ordered by span start. Overlapping spans of different kinds are resolved by
// kind priority; ambiguity within a rule is expressed as lowered confidence,
// never as a dropped candidate.
func (rs *RuleSet) Match(rawText string) []CandidateFact {
	var candidates []CandidateFact
	candidates = append(candidates, rs.matchIdentifiers(rawText)...)
	candidates = append(candidates, rs.matchAmounts(rawText)...)
	candidates = append(candidates, rs.matchDates(rawText)...)
	candidates = append(candidates, rs.matchParties(rawText)...)

	kept := resolveOverlaps(candidates)

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Start != kept[j].Start {
			return kept[i].Start < kept[j].Start
		}
		return kindPriority(kept[i].Kind) < kindPriority(kept[j].Kind)
	})
	return kept
}

// resolveOverlaps drops any candidate whose span overlaps an already-kept
// candidate of a higher-priority kind. Candidates are considered in strict
// priority order so the outcome does not depend on input order.
func resolveOverlaps(candidates []CandidateFact) []CandidateFact {
	ordered := make([]CandidateFact, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		pi, pj := kindPriority(ordered[i].Kind), kindPriority(ordered[j].Kind)
		if pi != pj {
			return pi < pj
		}
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		if ordered[i].End != ordered[j].End {
			return ordered[i].End < ordered[j].End
		}
		return ordered[i].NormalizedValue < ordered[j].NormalizedValue
	})

	var kept []CandidateFact
	for _, c := range ordered {
		conflict := false
		for _, k := range kept {
			if c.Kind != k.Kind && c.Start < k.End && k.Start < c.End {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, c)
		}
	}
	return kept
}

// hasCueBefore reports whether any cue word appears in the window chars
// preceding position start.
func hasCueBefore(text string, start int, cues []string, window int) bool {
	lo := start - window
	if lo < 0 {
		lo = 0
	}
	prefix := strings.ToUpper(text[lo:start])
	for _, cue := range cues {
		if strings.Contains(prefix, strings.ToUpper(cue)) {
			return true
		}
	}
	return false
}

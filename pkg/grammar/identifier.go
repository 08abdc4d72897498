package grammar

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

const (
	// Fuzzy matching tolerates at most this many OCR edits, and only for
	// spans of at least fuzzyMinSpan characters.
	fuzzyMaxDistance = 2
	fuzzyMinSpan     = 8

	cueWindowChars = 16
	cueBonus       = 0.05
	fuzzyPenalty   = 0.1
	maxConfidence  = 0.95
)

// ocrDigitRepairs maps letters commonly misread for digits, applied inside
// the numeric body of an identifier.
var ocrDigitRepairs = map[rune]rune{
	'O': '0', 'Q': '0', 'D': '0',
	'I': '1', 'L': '1',
	'Z': '2',
	'S': '5',
	'G': '6',
	'B': '8',
}

// ocrLetterRepairs is the reverse direction, applied to the leading alpha
// prefix of an identifier.
var ocrLetterRepairs = map[rune]rune{
	'0': 'O',
	'1': 'I',
	'2': 'Z',
	'5': 'S',
	'6': 'G',
	'8': 'B',
}

func (rs *RuleSet) matchIdentifiers(text string) []CandidateFact {
	var out []CandidateFact
	claimed := make(map[[2]int]bool)

	for _, rule := range rs.identifiers {
		for _, m := range rule.re.FindAllStringIndex(text, -1) {
			span := [2]int{m[0], m[1]}
			if claimed[span] {
				continue
			}
			claimed[span] = true
			raw := text[m[0]:m[1]]
			out = append(out, CandidateFact{
				Kind:            rule.kind,
				NormalizedValue: raw,
				RawSpan:         raw,
				Start:           m[0],
				End:             m[1],
				Confidence:      rs.identifierConfidence(text, m[0], rule, 0),
			})
		}
	}

	out = append(out, rs.fuzzyIdentifiers(text, claimed)...)
	return out
}

func (rs *RuleSet) identifierConfidence(text string, start int, rule identifierRule, distance int) float64 {
	confidence := rule.spec.BaseConfidence - float64(distance)*fuzzyPenalty
	if hasCueBefore(text, start, rule.spec.Cues, cueWindowChars) {
		confidence += cueBonus
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// fuzzyIdentifiers scans whitespace-delimited tokens for near-misses of the
// identifier shapes, repairing common OCR confusions and bounding the edit
// distance. A token longer than the rule's declared maximum length is never
// fuzzy-matched, so unrelated numeric runs cannot be pulled in.
func (rs *RuleSet) fuzzyIdentifiers(text string, claimed map[[2]int]bool) []CandidateFact {
	var out []CandidateFact
	for _, tok := range tokenize(text) {
		span := [2]int{tok.start, tok.end}
		if claimed[span] {
			continue
		}
		if len(tok.text) < fuzzyMinSpan {
			continue
		}
		for _, rule := range rs.identifiers {
			if len(tok.text) < rule.spec.MinLength || len(tok.text) > rule.spec.MaxLength {
				continue
			}
			repaired := repairOCR(strings.ToUpper(tok.text))
			if !rule.anchored.MatchString(repaired) {
				continue
			}
			distance := levenshtein.ComputeDistance(tok.text, repaired)
			if distance == 0 || distance > fuzzyMaxDistance {
				continue
			}
			claimed[span] = true
			out = append(out, CandidateFact{
				Kind:            rule.kind,
				NormalizedValue: repaired,
				RawSpan:         tok.text,
				Start:           tok.start,
				End:             tok.end,
				Confidence:      rs.identifierConfidence(text, tok.start, rule, distance),
			})
			break
		}
	}
	return out
}

// repairOCR canonicalizes an identifier-shaped token: digits misread as
// letters are repaired in the numeric body, letters misread as digits in the
// leading alpha prefix.
func repairOCR(token string) string {
	runes := []rune(token)

	// Leading alpha prefix ends at the first position from which the rest
	// is digit-dominated.
	prefixLen := 0
	for prefixLen < len(runes) && unicode.IsLetter(runes[prefixLen]) && !isDigitLookalike(runes, prefixLen) {
		prefixLen++
	}

	for i, r := range runes {
		if i < prefixLen {
			if rep, ok := ocrLetterRepairs[r]; ok {
				runes[i] = rep
			}
			continue
		}
		// A trailing check letter after a digit run stays a letter.
		if i == len(runes)-1 && unicode.IsLetter(r) && i > 0 && unicode.IsDigit(runes[i-1]) {
			continue
		}
		if rep, ok := ocrDigitRepairs[r]; ok {
			runes[i] = rep
		}
	}
	return string(runes)
}

// isDigitLookalike reports whether the letter at i sits in front of a digit
// run, which means it is probably a misread digit rather than prefix alpha.
func isDigitLookalike(runes []rune, i int) bool {
	if _, confusable := ocrDigitRepairs[runes[i]]; !confusable {
		return false
	}
	if i+1 >= len(runes) || !unicode.IsDigit(runes[i+1]) {
		return false
	}
	digits := 0
	for j := i + 1; j < len(runes) && j <= i+3; j++ {
		if unicode.IsDigit(runes[j]) {
			digits++
		}
	}
	return digits >= 2
}

type token struct {
	text  string
	start int
	end   int
}

// tokenize splits on whitespace, trimming surrounding punctuation that is
// not part of identifier shapes.
func tokenize(text string) []token {
	var out []token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = appendTrimmed(out, text, start, i)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = appendTrimmed(out, text, start, len(text))
	}
	return out
}

func appendTrimmed(out []token, text string, start, end int) []token {
	for start < end && isTrimmable(text[start]) {
		start++
	}
	for end > start && isTrimmable(text[end-1]) {
		end--
	}
	if end > start {
		out = append(out, token{text: text[start:end], start: start, end: end})
	}
	return out
}

func isTrimmable(b byte) bool {
	switch b {
	case ',', ';', ':', '(', ')', '[', ']', '"', '\'':
		return true
	}
	return false
}

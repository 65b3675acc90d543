// Package scorer rates how well a piece of fetched text answers a sub-question.
//
// The default LexicalScorer is a plain token-overlap heuristic. It is
// deterministic and its notes explain every score, so findings can be
// audited without re-running anything.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Result of scoring one source against one sub-question.
type Result struct {
	Excerpt        *string
	RelevanceScore float64
	Notes          string
}

type Scorer interface {
	Score(sourceText, subQuestion string) Result
}

const (
	minDenominator   = 6
	questionWeight   = 3
	maxExcerptLength = 400

	highBand     = 0.5
	moderateBand = 0.2
)

type LexicalScorer struct{}

func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

var _ Scorer = (*LexicalScorer)(nil)

// Tokenize lowercases, replaces anything that is not a letter or digit with
// a separator and drops tokens of two characters or fewer.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	tokens := make([]string, 0)
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) > 2 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		set[tok] = true
	}
	return set
}

// Score computes relevance = min(1, overlap / max(6, questionTokens*3)) where
// both counts are over distinct tokens.
func (s *LexicalScorer) Score(sourceText, subQuestion string) Result {
	questionTokens := tokenSet(subQuestion)
	textTokens := tokenSet(sourceText)

	if len(questionTokens) == 0 {
		return Result{Notes: "no scorable terms in sub-question"}
	}
	if len(textTokens) == 0 {
		return Result{Notes: "no scorable terms in source text"}
	}

	overlap := make([]string, 0)
	for tok := range questionTokens {
		if textTokens[tok] {
			overlap = append(overlap, tok)
		}
	}
	sort.Strings(overlap)

	denominator := math.Max(minDenominator, float64(len(questionTokens)*questionWeight))
	relevance := math.Min(1, float64(len(overlap))/denominator)

	matched := make(map[string]bool, len(overlap))
	for _, tok := range overlap {
		matched[tok] = true
	}

	return Result{
		Excerpt:        selectExcerpt(sourceText, matched),
		RelevanceScore: relevance,
		Notes:          bandNotes(relevance, overlap, len(questionTokens)),
	}
}

func bandNotes(relevance float64, overlap []string, questionTokens int) string {
	band := "weak"
	switch {
	case relevance >= highBand:
		band = "high"
	case relevance >= moderateBand:
		band = "moderate"
	}
	if len(overlap) == 0 {
		return fmt.Sprintf("weak overlap: none of %d question terms found", questionTokens)
	}
	return fmt.Sprintf("%s overlap: %d of %d question terms found (%s)",
		band, len(overlap), questionTokens, strings.Join(overlap, ", "))
}

// selectExcerpt returns the first sentence holding a matched token, else the
// first sentence, else nil.
func selectExcerpt(text string, matched map[string]bool) *string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	chosen := sentences[0]
	for _, sentence := range sentences {
		if containsAny(sentence, matched) {
			chosen = sentence
			break
		}
	}

	excerpt := truncateRunes(chosen, maxExcerptLength)
	return &excerpt
}

func containsAny(sentence string, matched map[string]bool) bool {
	for _, tok := range Tokenize(sentence) {
		if matched[tok] {
			return true
		}
	}
	return false
}

// SplitSentences breaks text on terminal punctuation followed by whitespace and on line breaks.
func SplitSentences(text string) []string {
	sentences := make([]string, 0)
	var current strings.Builder
	runes := []rune(text)

	flush := func() {
		s := strings.Join(strings.Fields(current.String()), " ")
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return sentences
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}

package executor

import (
	"strings"

	"homehub-be/pkg/research/scorer"
)

var stopwords = map[string]bool{
	"what": true, "which": true, "are": true, "the": true, "and": true, "for": true,
	"does": true, "how": true, "with": true, "that": true, "this": true, "from": true,
	"into": true, "about": true, "there": true, "their": true, "should": true,
	"would": true, "could": true, "involved": true, "regarding": true, "exist": true,
	"key": true, "main": true, "current": true, "state": true, "any": true, "who": true,
	"when": true, "where": true, "why": true, "can": true, "you": true, "our": true,
}

func keywords(text string) []string {
	out := make([]string, 0)
	seen := map[string]bool{}
	for _, tok := range scorer.Tokenize(text) {
		if stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// BroadenQuery returns the search query for re-query attempt n (n >= 1).
// Attempt 1 drops question phrasing, attempt 2 folds in objective terms,
// later attempts fall back to the leading terms plus "overview".
func BroadenQuery(subQuestion, objective string, attempt int) string {
	terms := keywords(subQuestion)
	if len(terms) == 0 {
		return subQuestion
	}

	switch attempt {
	case 1:
		return strings.Join(terms, " ")
	case 2:
		have := map[string]bool{}
		for _, t := range terms {
			have[t] = true
		}
		for _, t := range keywords(objective) {
			if len(terms) >= 10 {
				break
			}
			if !have[t] {
				terms = append(terms, t)
				have[t] = true
			}
		}
		return strings.Join(terms, " ")
	default:
		if len(terms) > 4 {
			terms = terms[:4]
		}
		return strings.Join(terms, " ") + " overview"
	}
}

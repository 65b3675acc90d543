package synthesizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"homehub-be/internal/entity"
	"homehub-be/pkg/research/acquisition"
)

var (
	preamblePattern = regexp.MustCompile(`(?i)^\s*(based on (my|the|our) (research|findings|analysis|sources)|after (researching|reviewing|analy[sz]ing) [^,:.]*|according to (my|our) research|here is (a|the|my) (summary|report)[^,:.]*)\s*[,:.]?\s*`)
	linkPattern     = regexp.MustCompile(`\[([^\]]+)\]\(((?:[^()\s]|\([^()\s]*\))+)\)`)
)

// StripPreamble removes a leading "Based on my research," style opener and
// re-capitalises what remains.
func StripPreamble(text string) string {
	text = strings.TrimSpace(text)
	loc := preamblePattern.FindStringIndex(text)
	if loc == nil || loc[1] == 0 {
		return text
	}
	rest := strings.TrimSpace(text[loc[1]:])
	if rest == "" {
		return text
	}
	r, size := utf8.DecodeRuneInString(rest)
	return string(unicode.ToUpper(r)) + rest[size:]
}

// ResolveCitations keeps inline links whose target is a run source and turns
// every other link into its plain title. Targets may hold one level of
// balanced parentheses.
func ResolveCitations(markdown string, sources []*entity.ResearchSource) string {
	known := make(map[string]bool, len(sources))
	for _, s := range sources {
		known[acquisition.NormalizeURL(s.Url)] = true
	}
	return linkPattern.ReplaceAllStringFunc(markdown, func(link string) string {
		m := linkPattern.FindStringSubmatch(link)
		if known[acquisition.NormalizeURL(m[2])] {
			return link
		}
		return m[1]
	})
}

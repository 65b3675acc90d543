package acquisition

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var contentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	".content",
	"#content",
	".main-content",
	"#main-content",
	".post-content",
}

const noiseSelectors = "nav, footer, header, aside, script, style, noscript, iframe, form, svg, .ad, .ads, .advertisement, .sidebar, .cookie-banner, .popup, .newsletter"

// ExtractText parses HTML and returns the page title and its main body text
// with whitespace collapsed.
func ExtractText(html string) (title string, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find(noiseSelectors).Remove()

	var main *goquery.Selection
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			main = selection.First()
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	// keep block boundaries so sentences do not run together
	main.Find("p, li, h1, h2, h3, h4, h5, h6, br, tr, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return collapseWhitespace(title), cleanText(main.Text()), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText collapses runs of spaces inside lines and drops blank lines.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = collapseWhitespace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

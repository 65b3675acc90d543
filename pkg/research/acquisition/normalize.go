package acquisition

import (
	"encoding/json"
	"strings"
	"time"
)

// Nesting keys tried in order when a payload wraps its result list.
var candidateKeys = []string{"results", "sources", "items", "data", "value"}

const maxNestingDepth = 4

// ToSearchResults flattens provider-native search payloads into SearchResult.
// raw may be decoded JSON (maps and slices), a JSON string or []byte.
// Results are de-duplicated by URL and carry the path they were found under
// in Metadata["provenance"]. Unusable input yields an empty slice.
func ToSearchResults(raw interface{}) []SearchResult {
	switch v := raw.(type) {
	case []byte:
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err != nil {
			return []SearchResult{}
		}
		raw = decoded
	case string:
		var decoded interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return []SearchResult{}
		}
		raw = decoded
	}

	items, path := locateItems(raw, "$", 0)
	results := make([]SearchResult, 0, len(items))
	for rank, item := range items {
		if r, ok := toSearchResult(item); ok {
			if r.Metadata == nil {
				r.Metadata = make(map[string]interface{})
			}
			r.Metadata["provenance"] = path
			r.Metadata["rank"] = rank
			results = append(results, r)
		}
	}
	return dedupeByURL(results)
}

func locateItems(raw interface{}, path string, depth int) ([]interface{}, string) {
	if depth > maxNestingDepth {
		return nil, path
	}
	switch v := raw.(type) {
	case []interface{}:
		return v, path
	case map[string]interface{}:
		for _, key := range candidateKeys {
			nested, ok := v[key]
			if !ok || nested == nil {
				continue
			}
			if items, p := locateItems(nested, path+"."+key, depth+1); len(items) > 0 {
				return items, p
			}
		}
		// a lone result object
		if firstString(v, "url", "link", "href", "uri") != "" {
			return []interface{}{v}, path
		}
	}
	return nil, path
}

func toSearchResult(item interface{}) (SearchResult, bool) {
	switch v := item.(type) {
	case string:
		if !looksLikeURL(v) {
			return SearchResult{}, false
		}
		return SearchResult{URL: strings.TrimSpace(v), Domain: DomainOf(v)}, true
	case map[string]interface{}:
		link := firstString(v, "url", "link", "href", "uri")
		if !looksLikeURL(link) {
			return SearchResult{}, false
		}
		r := SearchResult{
			URL:      link,
			Title:    firstString(v, "title", "name"),
			Snippet:  firstString(v, "snippet", "description", "content", "text", "summary"),
			Domain:   DomainOf(link),
			Metadata: map[string]interface{}{"raw": v},
		}
		if published := firstString(v, "publishedAt", "published_at", "published", "date", "page_age"); published != "" {
			r.PublishedAt = parseTime(published)
		}
		if score, ok := firstNumber(v, "score", "relevance", "relevance_score"); ok {
			r.Score = &score
		}
		return r, true
	}
	return SearchResult{}, false
}

func looksLikeURL(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstNumber(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch n := m[k].(type) {
		case float64:
			return n, true
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		case int:
			return float64(n), true
		}
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
}

func parseTime(s string) *time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// Package acquisition finds and downloads web evidence for research runs.
//
// Searchers return ranked SearchResult lists, fetchers return FetchedSource
// values. Neither treats "nothing found" as an error: zero results is an
// empty slice and a failed fetch is a FetchedSource with nil Text.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type SearchResult struct {
	URL         string                 `json:"url"`
	Title       string                 `json:"title"`
	Domain      string                 `json:"domain"`
	Snippet     string                 `json:"snippet"`
	PublishedAt *time.Time             `json:"published_at,omitempty"`
	Score       *float64               `json:"score,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type FetchedSource struct {
	URL         string
	Title       string
	Text        *string // nil when the page could not be turned into usable text
	RetrievedAt time.Time
}

type Searcher interface {
	Search(ctx context.Context, query string, recencyDays *int, limit int) ([]SearchResult, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) FetchedSource
}

// ErrSearchFailed marks retryable search provider failures.
var ErrSearchFailed = errors.New("search failed")

type SearchFailedError struct {
	Provider   string
	StatusCode int
	Cause      error
}

func (e *SearchFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s search failed (status %d): %v", e.Provider, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s search failed (status %d)", e.Provider, e.StatusCode)
}

func (e *SearchFailedError) Unwrap() error {
	return e.Cause
}

func (e *SearchFailedError) Is(target error) bool {
	return target == ErrSearchFailed
}

// NormalizeURL is the identity used for source de-duplication:
// lowercased, trimmed and without trailing slashes.
func NormalizeURL(raw string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), "/")
}

// DomainOf returns the host without a leading "www.".
func DomainOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

func dedupeByURL(results []SearchResult) []SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		key := NormalizeURL(r.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

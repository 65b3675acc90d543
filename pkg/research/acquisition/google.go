package acquisition

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const googleMaxResults = 10

// GoogleSearcher queries a Programmable Search Engine.
type GoogleSearcher struct {
	svc *customsearch.Service
	cx  string
}

func NewGoogleSearcher(ctx context.Context, apiKey, cx string) (*GoogleSearcher, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("google search requires an API key and engine id")
	}
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &GoogleSearcher{svc: svc, cx: cx}, nil
}

var _ Searcher = (*GoogleSearcher)(nil)

func (g *GoogleSearcher) Search(ctx context.Context, query string, recencyDays *int, limit int) ([]SearchResult, error) {
	if limit <= 0 || limit > googleMaxResults {
		limit = googleMaxResults
	}

	call := g.svc.Cse.List().Cx(g.cx).Q(query).Num(int64(limit)).Context(ctx)
	if recencyDays != nil && *recencyDays > 0 {
		call = call.DateRestrict(fmt.Sprintf("d%d", *recencyDays))
	}

	resp, err := call.Do()
	if err != nil {
		status := 0
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			status = gerr.Code
		}
		return nil, &SearchFailedError{Provider: "google", StatusCode: status, Cause: err}
	}

	results := make([]SearchResult, 0, len(resp.Items))
	for rank, item := range resp.Items {
		score := 1 - float64(rank)/float64(len(resp.Items)+1)
		results = append(results, SearchResult{
			URL:     item.Link,
			Title:   item.Title,
			Domain:  DomainOf(item.Link),
			Snippet: item.Snippet,
			Score:   &score,
			Metadata: map[string]interface{}{
				"provenance":   "google_cse",
				"rank":         rank,
				"display_link": item.DisplayLink,
			},
		})
	}
	return dedupeByURL(results), nil
}

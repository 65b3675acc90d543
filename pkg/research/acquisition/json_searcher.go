package acquisition

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// JSONSearcher calls any HTTP search endpoint that answers with JSON
// (SearXNG, Brave, Bing-style proxies) and normalizes the payload with
// ToSearchResults.
type JSONSearcher struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewJSONSearcher(endpoint, apiKey string, timeout time.Duration) *JSONSearcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &JSONSearcher{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

var _ Searcher = (*JSONSearcher)(nil)

func (s *JSONSearcher) Search(ctx context.Context, query string, recencyDays *int, limit int) ([]SearchResult, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	params := u.Query()
	params.Set("q", query)
	params.Set("format", "json")
	if limit > 0 {
		params.Set("count", strconv.Itoa(limit))
	}
	if recencyDays != nil && *recencyDays > 0 {
		params.Set("recency_days", strconv.Itoa(*recencyDays))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SearchFailedError{Provider: "json", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SearchFailedError{Provider: "json", StatusCode: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SearchFailedError{Provider: "json", StatusCode: resp.StatusCode}
	}

	results := ToSearchResults(body)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

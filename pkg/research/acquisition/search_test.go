package acquisition

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSearcher_Search(t *testing.T) {
	var gotQuery, gotRecency string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotRecency = r.URL.Query().Get("recency_days")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[{"url":"https://a.com","title":"A"},{"url":"https://a.com/","title":"dup"},{"url":"https://b.com","title":"B"},{"url":"https://c.com","title":"C"}]}`)
	}))
	defer srv.Close()

	days := 30
	s := NewJSONSearcher(srv.URL, "", time.Second)
	got, err := s.Search(context.Background(), "espresso machines", &days, 2)

	require.NoError(t, err)
	assert.Equal(t, "espresso machines", gotQuery)
	assert.Equal(t, "30", gotRecency)
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.com", got[0].URL)
	assert.Equal(t, "https://b.com", got[1].URL)
}

func TestJSONSearcher_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	got, err := NewJSONSearcher(srv.URL, "", time.Second).Search(context.Background(), "nothing", nil, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestJSONSearcher_Non2xxIsSearchFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewJSONSearcher(srv.URL, "", time.Second).Search(context.Background(), "q", nil, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSearchFailed))

	var sfe *SearchFailedError
	require.True(t, errors.As(err, &sfe))
	assert.Equal(t, http.StatusTooManyRequests, sfe.StatusCode)
}

type flakySearcher struct {
	failures int
	calls    int
	err      error
}

func (f *flakySearcher) Search(ctx context.Context, query string, recencyDays *int, limit int) ([]SearchResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []SearchResult{{URL: "https://ok.com"}}, nil
}

func TestWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{"Recovers after transient failure", 1, &SearchFailedError{Provider: "t", StatusCode: 503}, 3, 2, false},
		{"Gives up after attempts", 5, &SearchFailedError{Provider: "t", StatusCode: 503}, 2, 2, true},
		{"Does not retry other errors", 1, errors.New("bad config"), 3, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &flakySearcher{failures: tt.failures, err: tt.err}
			s := WithRetry(inner, tt.attempts, time.Millisecond)

			_, err := s.Search(context.Background(), "q", nil, 5)
			assert.Equal(t, tt.wantCalls, inner.calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package acquisition

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"homehub-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head><title>Espresso Guide</title><script>var x = 1;</script></head>
<body><nav>Home | Shop</nav><main><h1>Best machines</h1><p>The Gaggia Classic is a strong pick.</p><p>It costs under $500.</p></main>
<footer>Copyright</footer></body></html>`

func TestHTTPFetcher_ExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherOptions{}, logger.NewNopLogger())
	got := f.Fetch(context.Background(), srv.URL)

	require.NotNil(t, got.Text)
	assert.Equal(t, "Espresso Guide", got.Title)
	assert.Contains(t, *got.Text, "The Gaggia Classic is a strong pick.")
	assert.NotContains(t, *got.Text, "var x")
	assert.NotContains(t, *got.Text, "Copyright")
	assert.NotContains(t, *got.Text, "Home | Shop")
	assert.False(t, got.RetrievedAt.IsZero())
}

func TestHTTPFetcher_FailuresYieldNilText(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, samplePage)
	}))
	defer slow.Close()

	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer notFound.Close()

	binary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer binary.Close()

	f := NewHTTPFetcher(FetcherOptions{Timeout: 50 * time.Millisecond}, logger.NewNopLogger())

	tests := []struct {
		name string
		url  string
	}{
		{"Timeout", slow.URL},
		{"Non-2xx", notFound.URL},
		{"Unsupported content type", binary.URL},
		{"Invalid URL", "ftp://example.com/file"},
		{"Garbage", "::not a url::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Fetch(context.Background(), tt.url)
			assert.Nil(t, got.Text)
			assert.Equal(t, tt.url, got.URL)
		})
	}
}

func TestHTTPFetcher_Truncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, strings.Repeat("a", 5000))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherOptions{MaxChars: 100}, logger.NewNopLogger())
	got := f.Fetch(context.Background(), srv.URL)

	require.NotNil(t, got.Text)
	assert.Len(t, *got.Text, 100)
}

func TestHTTPFetcher_CachesByNormalizedURL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, samplePage)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherOptions{CacheTTL: time.Minute}, logger.NewNopLogger())
	first := f.Fetch(context.Background(), srv.URL+"/page")
	second := f.Fetch(context.Background(), srv.URL+"/page/")

	require.NotNil(t, first.Text)
	require.NotNil(t, second.Text)
	assert.Equal(t, int32(1), hits.Load())
}

type stubRenderer struct {
	html  string
	calls int
}

func (s *stubRenderer) Render(ctx context.Context, rawURL string) (string, error) {
	s.calls++
	return s.html, nil
}

func TestHTTPFetcher_BrowserFallbackForThinPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div id="root"></div></body></html>`)
	}))
	defer srv.Close()

	rendered := "<html><head><title>Rendered</title></head><body><main><p>" + strings.Repeat("Rendered content. ", 40) + "</p></main></body></html>"
	renderer := &stubRenderer{html: rendered}

	f := NewHTTPFetcher(FetcherOptions{Renderer: renderer}, logger.NewNopLogger())
	got := f.Fetch(context.Background(), srv.URL)

	assert.Equal(t, 1, renderer.calls)
	require.NotNil(t, got.Text)
	assert.Equal(t, "Rendered", got.Title)
	assert.Contains(t, *got.Text, "Rendered content.")
}

package acquisition

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"homehub-be/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxChars     = 12000
	DefaultUserAgent    = "Mozilla/5.0 (compatible; HomeHubResearch/1.0)"

	maxBodyBytes = 5 << 20
)

type FetcherOptions struct {
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
	// CacheTTL > 0 keeps successfully extracted pages so one URL seen by
	// several sub-questions is downloaded once.
	CacheTTL time.Duration
	// Renderer is consulted when plain HTTP yields too little text.
	Renderer Renderer
}

// HTTPFetcher downloads a page and reduces it to plain text.
type HTTPFetcher struct {
	client   *http.Client
	opts     FetcherOptions
	cache    *cache.Cache
	renderer Renderer
	logger   logger.ILogger
}

func NewHTTPFetcher(opts FetcherOptions, log logger.ILogger) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	f := &HTTPFetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		renderer: opts.Renderer,
		logger:   log,
	}
	if opts.CacheTTL > 0 {
		f.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return f
}

var _ Fetcher = (*HTTPFetcher)(nil)

// Fetch never returns an error. Any failure yields Text == nil.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) FetchedSource {
	key := NormalizeURL(rawURL)
	if f.cache != nil {
		if x, found := f.cache.Get(key); found {
			cached := x.(FetchedSource)
			cached.RetrievedAt = time.Now()
			return cached
		}
	}

	result := FetchedSource{URL: rawURL, RetrievedAt: time.Now()}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		f.logger.Debug("ACQUISITION", "Skipping unfetchable URL", map[string]interface{}{"url": rawURL})
		return result
	}

	title, text, ok := f.fetchHTTP(ctx, rawURL)
	if f.renderer != nil && ShouldUseBrowser(text) {
		if html, err := f.renderer.Render(ctx, rawURL); err == nil {
			if t, body, err := ExtractText(html); err == nil && len(body) > len(text) {
				title, text, ok = t, body, true
			}
		} else {
			f.logger.Debug("ACQUISITION", "Browser render failed", map[string]interface{}{"url": rawURL, "error": err.Error()})
		}
	}

	if !ok || strings.TrimSpace(text) == "" {
		return result
	}

	text = truncateRunes(text, f.opts.MaxChars)
	result.Title = title
	result.Text = &text

	if f.cache != nil {
		f.cache.Set(key, result, cache.DefaultExpiration)
	}
	return result
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, rawURL string) (string, string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", false
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("ACQUISITION", "Fetch failed", map[string]interface{}{"url": rawURL, "error": err.Error()})
		return "", "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Debug("ACQUISITION", "Fetch returned non-2xx", map[string]interface{}{"url": rawURL, "status": resp.StatusCode})
		return "", "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", false
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "" || strings.Contains(mediaType, "html"):
		title, text, err := ExtractText(string(body))
		if err != nil {
			return "", "", false
		}
		return title, text, true
	case strings.HasPrefix(mediaType, "text/"):
		return "", cleanText(string(body)), true
	default:
		return "", "", false
	}
}

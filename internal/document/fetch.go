package document

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Fetcher retrieves the raw HTML for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) (io.ReadCloser, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return f(ctx, rawURL)
}

// Pages serves fixed documents keyed by URL.
type Pages map[string]string

// Fetch returns the document stored under rawURL.
func (p Pages) Fetch(_ context.Context, rawURL string) (io.ReadCloser, error) {
	html, ok := p[rawURL]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rawURL, os.ErrNotExist)
	}
	return io.NopCloser(strings.NewReader(html)), nil
}

// HTTPFetcher loads about:, file: and http(s): URLs.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if rawURL == "" || rawURL == "about:blank" {
		return io.NopCloser(strings.NewReader("<html><head><title></title></head><body></body></html>")), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	switch u.Scheme {
	case "file", "":
		path := u.Path
		if u.Scheme == "" {
			path = rawURL
		}
		return os.Open(path)
	case "http", "https":
		return f.get(ctx, rawURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: %s", rawURL, resp.Status)
	}
	return resp.Body, nil
}

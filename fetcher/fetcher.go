// Package fetcher downloads playlist documents over HTTP, falling back to
// the file cache when the upstream source is unreachable.
package fetcher

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alorle/iptv-engine/cache"
	"github.com/alorle/iptv-engine/circuitbreaker"
)

// Fetcher handles fetching playlist content with cache fallback. An optional
// circuit breaker sheds requests to a source that keeps failing; while the
// circuit is open the cache is the only data source.
type Fetcher struct {
	client   *http.Client
	storage  cache.Storage
	breaker  circuitbreaker.CircuitBreaker
	cacheTTL time.Duration
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBreaker wraps upstream fetches in the given circuit breaker.
func WithBreaker(cb circuitbreaker.CircuitBreaker) Option {
	return func(f *Fetcher) { f.breaker = cb }
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// New creates a Fetcher with the specified timeout and cache configuration.
func New(timeout time.Duration, storage cache.Storage, cacheTTL time.Duration, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		storage:  storage,
		cacheTTL: cacheTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchWithCacheFallback fetches playlist content from the URL with cache
// fallback: the source is always tried first, and any cached copy, fresh or
// stale, is served only when the source fails. The boolean reports whether
// the content came from the cache.
func (f *Fetcher) FetchWithCacheFallback(url string) ([]byte, bool, error) {
	cacheKey := cache.DeriveKeyFromURL(url)

	content, err := f.fetchFromURL(url)
	if err == nil {
		f.logger.Info("fetched playlist from source", "url", url, "bytes", len(content))
		f.updateCache(cacheKey, url, content)
		return content, false, nil
	}

	f.logger.Warn("playlist fetch failed, trying cache fallback", "url", url, "error", err)

	entry, cacheErr := f.storage.Get(cacheKey)
	if cacheErr != nil {
		f.logger.Error("no cache available for failed source", "url", url, "error", cacheErr)
		return nil, false, fmt.Errorf("upstream fetch failed and no cache available: %w", err)
	}

	f.logger.Info("serving stale cache", "url", url, "cached_at", entry.Timestamp)
	return entry.Content, true, nil
}

// FetchWithCache fetches playlist content cache-first: a fresh cached copy is
// served without touching the network, an expired or missing one triggers a
// fetch, and a failed fetch falls back to whatever cached copy exists. The
// booleans report cache use and staleness respectively.
func (f *Fetcher) FetchWithCache(url string) ([]byte, bool, bool, error) {
	cacheKey := cache.DeriveKeyFromURL(url)

	entry, cacheErr := f.storage.Get(cacheKey)
	if cacheErr == nil {
		expired, expErr := f.storage.IsExpired(cacheKey, f.cacheTTL)
		if expErr != nil {
			// Treat as expired and continue to fetch.
			f.logger.Warn("cannot check cache expiration", "url", url, "error", expErr)
		} else if !expired {
			f.logger.Debug("serving fresh cache", "url", url, "age", time.Since(entry.Timestamp))
			return entry.Content, true, false, nil
		}
	}

	content, fetchErr := f.fetchFromURL(url)
	if fetchErr == nil {
		f.logger.Info("fetched playlist from source", "url", url, "bytes", len(content))
		f.updateCache(cacheKey, url, content)
		return content, false, false, nil
	}

	f.logger.Warn("playlist fetch failed", "url", url, "error", fetchErr)

	if cacheErr != nil {
		return nil, false, false, fmt.Errorf("upstream fetch failed and no cache available: %w", fetchErr)
	}

	f.logger.Info("serving stale cache", "url", url, "cached_at", entry.Timestamp)
	return entry.Content, true, true, nil
}

// IsExpired checks if the cached content for the URL is expired.
func (f *Fetcher) IsExpired(url string) (bool, error) {
	return f.storage.IsExpired(cache.DeriveKeyFromURL(url), f.cacheTTL)
}

func (f *Fetcher) updateCache(cacheKey, url string, content []byte) {
	if err := f.storage.Set(cacheKey, content); err != nil {
		f.logger.Warn("cannot update cache", "url", url, "error", err)
	}
}

// fetchFromURL performs the actual HTTP fetch, through the circuit breaker
// when one is configured.
func (f *Fetcher) fetchFromURL(url string) ([]byte, error) {
	if f.breaker == nil {
		return f.doFetch(url)
	}

	var content []byte
	err := f.breaker.Execute(func() error {
		var err error
		content, err = f.doFetch(url)
		return err
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (f *Fetcher) doFetch(url string) ([]byte, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request returned status %d: %s", resp.StatusCode, resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return content, nil
}

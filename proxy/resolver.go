// Package proxy resolves indirect ("proxy") stream references from playlist
// entries into playable URLs. Three unrelated provider protocols are
// implemented as interchangeable strategies behind one cache-backed resolver.
package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alorle/iptv-engine/m3u"
	"github.com/alorle/iptv-engine/metrics"
)

// Kind identifies one proxy resolution strategy. New strategies are added by
// adding a Kind and an implementation, not by touching the cache.
type Kind string

const (
	// KindManifest resolves a JSON manifest describing encoded variant URLs.
	KindManifest Kind = "stb"
	// KindStitcher drives the two-hop stitcher session protocol.
	KindStitcher Kind = "stitcher"
	// KindScrape extracts the stream URL from a scraped web page.
	KindScrape Kind = "scrape"
)

// ParseKind maps a playlist proxy= tag value onto a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindManifest, KindStitcher, KindScrape:
		return Kind(s), true
	}
	return "", false
}

// TTL returns how long a resolved URL of this kind stays valid in the cache.
// Manifest endpoints are assumed stable within a session; stitcher session
// tokens and scraped URLs expire quickly.
func (k Kind) TTL() time.Duration {
	switch k {
	case KindManifest:
		return 23 * time.Hour
	case KindStitcher:
		return time.Minute
	case KindScrape:
		return 90 * time.Second
	default:
		return 0
	}
}

const defaultTimeout = 15 * time.Second

// Resolution errors shared by the strategies.
var (
	// ErrDecode indicates a malformed manifest or bootstrap payload.
	ErrDecode = errors.New("malformed manifest payload")
	// ErrEmptyManifest indicates a manifest with no usable variants.
	ErrEmptyManifest = errors.New("manifest has no variants")
)

// ResolutionError reports a failed proxy resolution for one playlist entry.
// It is never fatal to the overall parse; the parser drops the entry.
type ResolutionError struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s stream for %s: %v", e.Kind, e.Source, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// strategy computes a fresh resolved URL for one proxy kind.
type strategy interface {
	resolve(source *url.URL) (*url.URL, error)
}

// Resolver dispatches proxy stream references to the strategy for their kind,
// consulting and populating the shared TTL cache. It implements
// m3u.StreamResolver and is safe for concurrent use.
type Resolver struct {
	cache      *Cache
	strategies map[Kind]strategy
	logger     *slog.Logger
}

// NewResolver wires the given strategies behind a shared TTL cache. A nil
// strategy disables its kind.
func NewResolver(manifest *ManifestStrategy, stitcher *StitcherStrategy, scrape *ScrapeStrategy, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		cache:      NewCache(),
		strategies: make(map[Kind]strategy),
		logger:     logger,
	}
	if manifest != nil {
		r.strategies[KindManifest] = manifest
	}
	if stitcher != nil {
		r.strategies[KindStitcher] = stitcher
	}
	if scrape != nil {
		r.strategies[KindScrape] = scrape
	}
	return r
}

// Resolve turns an opaque proxy reference into a playable stream URL,
// serving from the cache while the kind's TTL allows it.
func (r *Resolver) Resolve(kind string, source *url.URL) (*url.URL, error) {
	k, ok := ParseKind(kind)
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, m3u.ErrUnknownProxyKind)
	}

	if cached, ok := r.cache.Lookup(k, source.String(), k.TTL()); ok {
		r.logger.Debug("resolved proxy stream from cache", "kind", k, "source", source)
		metrics.RecordProxyCacheHit(string(k))
		return cached, nil
	}
	metrics.RecordProxyCacheMiss(string(k))

	strat, ok := r.strategies[k]
	if !ok {
		// A kind with no wired strategy is treated like an unknown kind:
		// the caller keeps the literal reference instead of dropping it.
		return nil, fmt.Errorf("%s strategy not configured: %w", k, m3u.ErrUnknownProxyKind)
	}

	stream, err := strat.resolve(source)
	if err != nil {
		metrics.RecordProxyResolution(string(k), "failure")
		return nil, &ResolutionError{Kind: k, Source: source.String(), Err: err}
	}

	r.cache.Store(k, source.String(), stream)
	metrics.RecordProxyResolution(string(k), "success")
	r.logger.Info("resolved proxy stream", "kind", k, "source", source, "stream", stream)
	return stream, nil
}

// desktopHeaders is the fixed desktop-browser header set the stitcher and
// scrape strategies present upstream.
func desktopHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36")
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-GB,en;q=0.9")
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	return h
}

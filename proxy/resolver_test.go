package proxy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alorle/iptv-engine/m3u"
)

func TestResolver(t *testing.T) {
	t.Run("rejects unknown kinds", func(t *testing.T) {
		r := NewResolver(nil, nil, nil, nil)
		if _, err := r.Resolve("teleport", mustParseURL(t, "https://proxy.example.com/ch1")); !errors.Is(err, m3u.ErrUnknownProxyKind) {
			t.Errorf("expected ErrUnknownProxyKind, got %v", err)
		}
	})

	t.Run("treats kinds without a configured strategy as unknown", func(t *testing.T) {
		// Callers keep the literal reference in this case, so the error
		// must carry the unknown-kind sentinel rather than a resolution
		// failure.
		r := NewResolver(nil, nil, nil, nil)
		_, err := r.Resolve("stb", mustParseURL(t, "https://proxy.example.com/ch1"))
		if !errors.Is(err, m3u.ErrUnknownProxyKind) {
			t.Errorf("expected ErrUnknownProxyKind, got %v", err)
		}
		var resErr *ResolutionError
		if errors.As(err, &resErr) {
			t.Errorf("expected no ResolutionError, got %v", resErr)
		}
	})

	t.Run("serves repeat resolutions from the cache", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte(`{"variants":[{"url":"http://cdn.example.com/play?token=abc"}]}`))
		}))
		defer srv.Close()

		r := NewResolver(NewManifestStrategy(srv.Client(), "vlc"), nil, nil, nil)
		source := mustParseURL(t, srv.URL)

		first, err := r.Resolve("stb", source)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := r.Resolve("stb", source)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.String() != second.String() {
			t.Errorf("expected identical results, got %q and %q", first, second)
		}
		if got := hits.Load(); got != 1 {
			t.Errorf("expected 1 upstream fetch, got %d", got)
		}
	})

	t.Run("does not cache failures", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				http.Error(w, "warming up", http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"variants":[{"url":"http://cdn.example.com/play?token=abc"}]}`))
		}))
		defer srv.Close()

		r := NewResolver(NewManifestStrategy(srv.Client(), ""), nil, nil, nil)
		source := mustParseURL(t, srv.URL)

		if _, err := r.Resolve("stb", source); err == nil {
			t.Fatal("expected first resolution to fail")
		}
		if _, err := r.Resolve("stb", source); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
	})
}

func TestKind(t *testing.T) {
	t.Run("parses known kinds", func(t *testing.T) {
		for _, s := range []string{"stb", "stitcher", "scrape"} {
			if _, ok := ParseKind(s); !ok {
				t.Errorf("expected %q to parse", s)
			}
		}
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		if _, ok := ParseKind("rtmp"); ok {
			t.Error("expected rtmp to be rejected")
		}
	})

	t.Run("orders ttls by volatility", func(t *testing.T) {
		if !(KindManifest.TTL() > KindStitcher.TTL()) {
			t.Error("expected manifest entries to outlive stitcher sessions")
		}
		if !(KindScrape.TTL() > KindStitcher.TTL()) {
			t.Error("expected scraped urls to outlive stitcher sessions")
		}
	})
}

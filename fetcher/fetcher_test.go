package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alorle/iptv-engine/cache"
	"github.com/alorle/iptv-engine/circuitbreaker"
)

// mockStorage is a simple in-memory cache for testing
type mockStorage struct {
	data map[string]*cache.Entry
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		data: make(map[string]*cache.Entry),
	}
}

func (m *mockStorage) Get(key string) (*cache.Entry, error) {
	entry, exists := m.data[key]
	if !exists {
		return nil, fmt.Errorf("cache entry not found")
	}
	return entry, nil
}

func (m *mockStorage) Set(key string, content []byte) error {
	m.data[key] = &cache.Entry{
		Content:   content,
		Timestamp: time.Now(),
	}
	return nil
}

func (m *mockStorage) IsExpired(key string, ttl time.Duration) (bool, error) {
	entry, exists := m.data[key]
	if !exists {
		return true, nil
	}
	return time.Since(entry.Timestamp) > ttl, nil
}

func (m *mockStorage) backdate(key string, age time.Duration) {
	if entry, ok := m.data[key]; ok {
		entry.Timestamp = time.Now().Add(-age)
	}
}

const playlistBody = "#EXTM3U\n#EXTINF:-1,Test Channel\nhttp://example.com/stream.m3u8\n"

func TestFetcherImplementsInterface(t *testing.T) {
	var _ Interface = New(time.Second, newMockStorage(), time.Hour)
	var _ Interface = &MockFetcher{}
}

func TestFetchWithCacheFallback(t *testing.T) {
	t.Run("serves fresh content and updates the cache", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(playlistBody))
		}))
		defer srv.Close()

		storage := newMockStorage()
		f := New(time.Second, storage, time.Hour)

		content, fromCache, err := f.FetchWithCacheFallback(srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fromCache {
			t.Error("expected fresh content, got cached")
		}
		if string(content) != playlistBody {
			t.Errorf("unexpected content %q", content)
		}
		if _, err := storage.Get(cache.DeriveKeyFromURL(srv.URL)); err != nil {
			t.Errorf("expected cache to be updated: %v", err)
		}
	})

	t.Run("falls back to cache when the source fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		storage := newMockStorage()
		storage.Set(cache.DeriveKeyFromURL(srv.URL), []byte(playlistBody))

		f := New(time.Second, storage, time.Hour)
		content, fromCache, err := f.FetchWithCacheFallback(srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fromCache {
			t.Error("expected cached content")
		}
		if string(content) != playlistBody {
			t.Errorf("unexpected content %q", content)
		}
	})

	t.Run("fails when the source is down and nothing is cached", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		f := New(time.Second, newMockStorage(), time.Hour)
		if _, _, err := f.FetchWithCacheFallback(srv.URL); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

func TestFetchWithCache(t *testing.T) {
	t.Run("serves fresh cache without touching the network", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte(playlistBody))
		}))
		defer srv.Close()

		storage := newMockStorage()
		storage.Set(cache.DeriveKeyFromURL(srv.URL), []byte(playlistBody))

		f := New(time.Second, storage, time.Hour)
		content, fromCache, stale, err := f.FetchWithCache(srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fromCache || stale {
			t.Errorf("expected fresh cache, got fromCache=%v stale=%v", fromCache, stale)
		}
		if string(content) != playlistBody {
			t.Errorf("unexpected content %q", content)
		}
		if hits.Load() != 0 {
			t.Errorf("expected no upstream fetch, got %d", hits.Load())
		}
	})

	t.Run("refreshes an expired cache entry", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("fresh"))
		}))
		defer srv.Close()

		key := cache.DeriveKeyFromURL(srv.URL)
		storage := newMockStorage()
		storage.Set(key, []byte("old"))
		storage.backdate(key, 2*time.Hour)

		f := New(time.Second, storage, time.Hour)
		content, fromCache, _, err := f.FetchWithCache(srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fromCache {
			t.Error("expected refreshed content")
		}
		if string(content) != "fresh" {
			t.Errorf("unexpected content %q", content)
		}
	})

	t.Run("serves stale cache when the refresh fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		key := cache.DeriveKeyFromURL(srv.URL)
		storage := newMockStorage()
		storage.Set(key, []byte(playlistBody))
		storage.backdate(key, 2*time.Hour)

		f := New(time.Second, storage, time.Hour)
		content, fromCache, stale, err := f.FetchWithCache(srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fromCache || !stale {
			t.Errorf("expected stale cache, got fromCache=%v stale=%v", fromCache, stale)
		}
		if string(content) != playlistBody {
			t.Errorf("unexpected content %q", content)
		}
	})
}

func TestFetcherWithBreaker(t *testing.T) {
	t.Run("open circuit falls back to cache without hitting the source", func(t *testing.T) {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		storage := newMockStorage()
		storage.Set(cache.DeriveKeyFromURL(srv.URL), []byte(playlistBody))

		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: 1,
			Timeout:          time.Minute,
		})
		f := New(time.Second, storage, time.Hour, WithBreaker(cb))

		// First call trips the breaker, second is shed before the network.
		if _, _, err := f.FetchWithCacheFallback(srv.URL); err != nil {
			t.Fatalf("expected cached fallback, got %v", err)
		}
		if _, _, err := f.FetchWithCacheFallback(srv.URL); err != nil {
			t.Fatalf("expected cached fallback, got %v", err)
		}

		if cb.State() != circuitbreaker.StateOpen {
			t.Errorf("expected open circuit, got %s", cb.State())
		}
		if hits.Load() != 1 {
			t.Errorf("expected 1 upstream hit, got %d", hits.Load())
		}
	})
}

func TestIsExpired(t *testing.T) {
	storage := newMockStorage()
	f := New(time.Second, storage, time.Hour)

	expired, err := f.IsExpired("http://provider.example.com/list.m3u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expired {
		t.Error("expected missing entry to be reported expired")
	}

	storage.Set(cache.DeriveKeyFromURL("http://provider.example.com/list.m3u"), []byte(playlistBody))
	expired, err = f.IsExpired("http://provider.example.com/list.m3u")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expired {
		t.Error("expected fresh entry to not be expired")
	}
}

var errUpstream = errors.New("upstream failure")

func TestMockFetcher(t *testing.T) {
	mock := &MockFetcher{
		FetchWithCacheFallbackFunc: func(url string) ([]byte, bool, error) {
			return nil, false, errUpstream
		},
	}
	if _, _, err := mock.FetchWithCacheFallback("http://a.example.com"); !errors.Is(err, errUpstream) {
		t.Errorf("expected configured error, got %v", err)
	}
	if _, _, err := (&MockFetcher{}).FetchWithCacheFallback("http://a.example.com"); err != nil {
		t.Errorf("expected zero-value mock to succeed, got %v", err)
	}
}

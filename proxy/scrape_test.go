package proxy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestScrapeStrategy(t *testing.T) {
	page := mustParseURL(t, "https://tv.example.com/watch/7")

	t.Run("replays the captured request and extracts the stream", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
				t.Error("expected the captured session cookie on the replay")
			}
			if got := r.Header.Get("Referer"); got != page.String() {
				t.Errorf("expected referer %q, got %q", page, got)
			}
			w.Write([]byte(`{"src":"https://cdn.example.com/live/7/playlist.m3u8","poster":"https://cdn.example.com/7.jpg"}`))
		}))
		defer srv.Close()

		browser := &BrowserMock{Requests: []NavigationRequest{
			{URL: mustParseURL(t, "https://ads.example.com/pixel.gif")},
			{
				URL:     mustParseURL(t, srv.URL+"/api/stream?id=7"),
				Cookies: []*http.Cookie{{Name: "session", Value: "abc"}},
			},
		}}
		target := mustParseURL(t, srv.URL)
		s := NewScrapeStrategy(ScrapeConfig{TargetHost: target.Host, TargetPath: "/api/stream"}, browser, srv.Client(), nil)

		got, err := s.resolve(page)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "https://cdn.example.com/live/7/playlist.m3u8"
		if got.String() != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("fails when no navigation request matches", func(t *testing.T) {
		browser := &BrowserMock{Requests: []NavigationRequest{
			{URL: mustParseURL(t, "https://ads.example.com/pixel.gif")},
		}}
		s := NewScrapeStrategy(ScrapeConfig{TargetHost: "player.example.com", TargetPath: "/api"}, browser, nil, nil)

		if _, err := s.resolve(page); !errors.Is(err, ErrNoNavigation) {
			t.Errorf("expected ErrNoNavigation, got %v", err)
		}
	})

	t.Run("fails when the page load reports an error", func(t *testing.T) {
		browser := &BrowserMock{Err: errors.New("timed out")}
		s := NewScrapeStrategy(ScrapeConfig{TargetHost: "player.example.com", TargetPath: "/api"}, browser, nil, nil)

		if _, err := s.resolve(page); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("fails when the response holds no stream url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"src":"https://cdn.example.com/live/7/poster.jpg"}`))
		}))
		defer srv.Close()

		target := mustParseURL(t, srv.URL)
		browser := &BrowserMock{Requests: []NavigationRequest{
			{URL: mustParseURL(t, srv.URL+"/api/stream?id=7")},
		}}
		s := NewScrapeStrategy(ScrapeConfig{TargetHost: target.Host, TargetPath: "/api/stream"}, browser, srv.Client(), nil)

		if _, err := s.resolve(page); !errors.Is(err, ErrStreamNotFound) {
			t.Errorf("expected ErrStreamNotFound, got %v", err)
		}
	})
}

package main

import (
	"errors"
	"log/slog"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/alorle/iptv-engine/config"
	"github.com/alorle/iptv-engine/m3u"
	"github.com/alorle/iptv-engine/proxy"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Cache.Dir = t.TempDir()
	cfg.Store.Path = filepath.Join(t.TempDir(), "engine.db")
	cfg.Proxy.Scrape.TargetHost = "embed.example.com"
	cfg.Proxy.Scrape.TargetPath = "/player/"
	return cfg
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestNewApp(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("without a browser scrape references stay literal", func(t *testing.T) {
		app, err := newApp(newTestConfig(t), nil, logger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer app.store.Close()

		_, err = app.resolver.Resolve("scrape", mustParseURL(t, "https://embed.example.com/player/ch1"))
		if !errors.Is(err, m3u.ErrUnknownProxyKind) {
			t.Errorf("expected ErrUnknownProxyKind, got %v", err)
		}
	})

	t.Run("with a browser the scrape strategy is wired from config", func(t *testing.T) {
		app, err := newApp(newTestConfig(t), &proxy.BrowserMock{}, logger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer app.store.Close()

		_, err = app.resolver.Resolve("scrape", mustParseURL(t, "https://embed.example.com/player/ch1"))
		if !errors.Is(err, proxy.ErrNoNavigation) {
			t.Errorf("expected ErrNoNavigation from the wired strategy, got %v", err)
		}
	})
}

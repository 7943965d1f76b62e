package proxy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrNoNavigation is returned when the page load finishes without any
	// navigation request matching the configured target.
	ErrNoNavigation = errors.New("no matching navigation request observed")

	// ErrStreamNotFound is returned when the replayed response body holds
	// no manifest URL.
	ErrStreamNotFound = errors.New("no stream url found in response")
)

// urlPattern matches the first URL-shaped run in a response body. Matches are
// filtered by extension afterwards.
var urlPattern = regexp.MustCompile(`http.[^ "]+`)

const manifestExtension = ".m3u8"

// NavigationRequest is one request observed while a browser loads a page.
type NavigationRequest struct {
	URL     *url.URL
	Cookies []*http.Cookie
}

// Browser loads a page and reports navigation requests to shouldLoad. It
// keeps loading until shouldLoad returns false or the page settles.
type Browser interface {
	Load(page *url.URL, shouldLoad func(NavigationRequest) bool) error
}

// ScrapeConfig names the navigation request worth capturing.
type ScrapeConfig struct {
	// TargetHost is the host the interesting request is sent to.
	TargetHost string
	// TargetPath is a path prefix the interesting request must carry.
	TargetPath string
}

// ScrapeStrategy resolves a stream by loading the source page in a browser,
// capturing the embedded player's manifest request together with its session
// cookies, and replaying that request directly.
type ScrapeStrategy struct {
	cfg     ScrapeConfig
	browser Browser
	client  *http.Client
	logger  *slog.Logger
}

func NewScrapeStrategy(cfg ScrapeConfig, browser Browser, client *http.Client, logger *slog.Logger) *ScrapeStrategy {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScrapeStrategy{
		cfg:     cfg,
		browser: browser,
		client:  client,
		logger:  logger,
	}
}

func (s *ScrapeStrategy) resolve(source *url.URL) (*url.URL, error) {
	captured, err := s.capture(source)
	if err != nil {
		return nil, err
	}
	return s.replay(source, captured)
}

// capture loads the page and stops at the first navigation request aimed at
// the configured target.
func (s *ScrapeStrategy) capture(page *url.URL) (*NavigationRequest, error) {
	var captured *NavigationRequest
	err := s.browser.Load(page, func(req NavigationRequest) bool {
		if captured != nil {
			return false
		}
		if req.URL == nil || req.URL.Host != s.cfg.TargetHost {
			return true
		}
		if !strings.HasPrefix(req.URL.Path, s.cfg.TargetPath) {
			return true
		}
		captured = &req
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("load source page: %w", err)
	}
	if captured == nil {
		return nil, ErrNoNavigation
	}
	return captured, nil
}

// replay re-issues the captured request outside the browser, with the
// browser's cookies and a desktop identity, and extracts the manifest URL
// from the response body.
func (s *ScrapeStrategy) replay(page *url.URL, captured *NavigationRequest) (*url.URL, error) {
	req, err := http.NewRequest(http.MethodGet, captured.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build replay request: %w", err)
	}
	req.Header = desktopHeaders()
	req.Header.Set("Referer", page.String())
	for _, c := range captured.Cookies {
		req.AddCookie(c)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replay captured request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("replay captured request: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read replay response: %w", err)
	}

	for _, match := range urlPattern.FindAllString(string(body), -1) {
		stream, err := url.Parse(match)
		if err != nil {
			s.logger.Warn("discarding malformed stream candidate", "candidate", match, "error", err)
			continue
		}
		if !strings.HasSuffix(stream.Path, manifestExtension) {
			continue
		}
		return stream, nil
	}
	return nil, ErrStreamNotFound
}

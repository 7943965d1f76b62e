package m3u

import (
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/alorle/iptv-engine/metrics"
)

// Playlist directives. The proxy= tag is a custom, non-standard extension
// marking a stream reference that needs provider-specific resolution.
const (
	directiveHeader       = "#EXTM3U"
	directiveEntry        = "#EXTINF"
	directiveVariant      = "#EXT-X-STREAM-INF"
	directiveGroup        = "#EXTGRP"
	directivePlayerOption = "#EXTVLCOPT"
)

const (
	tagGroupTitle = "group-title="
	tagLogo       = "tvg-logo="
	tagBandwidth  = "BANDWIDTH="
	tagProxy      = "proxy="
)

const (
	schemeHTTP = "http"
	schemeFile = "file"
)

// maxResolvers caps how many proxy resolutions run concurrently during one
// Parse call.
const maxResolvers = 3

// Parse errors. Anything else that goes wrong with an individual entry is
// tolerated: the entry is dropped and parsing continues.
var (
	ErrInvalidFormat = errors.New("invalid playlist format")
	ErrInvalidHeader = errors.New("invalid playlist header")
)

// ErrUnknownProxyKind is returned by a StreamResolver for proxy kinds it does
// not recognize. The parser then keeps the entry's literal stream reference
// instead of dropping it.
var ErrUnknownProxyKind = errors.New("unknown proxy kind")

// StreamResolver turns an opaque proxy stream reference into a playable URL.
// Implementations are expected to be safe for concurrent use; Parse invokes
// Resolve from multiple goroutines.
type StreamResolver interface {
	Resolve(kind string, source *url.URL) (*url.URL, error)
}

// Parser scans playlist text into items, dispatching proxy entries to an
// optional StreamResolver.
type Parser struct {
	resolver StreamResolver
	accept   func(string) bool
	logger   *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithResolver sets the resolver used for entries carrying a proxy= tag.
// Without one, proxy entries are dropped.
func WithResolver(r StreamResolver) Option {
	return func(p *Parser) { p.resolver = r }
}

// WithStreamAccept adds a predicate that accepts stream reference lines
// beyond the built-in http and file prefixes.
func WithStreamAccept(accept func(string) bool) Option {
	return func(p *Parser) { p.accept = accept }
}

// WithLogger sets the logger used for per-entry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) { p.logger = logger }
}

// NewParser creates a Parser with the given options.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse scans a whole playlist document into items.
//
// It fails only when the document is empty or its first non-empty line is not
// the #EXTM3U header. Individual entries that are malformed, lack a playable
// stream reference, or fail proxy resolution are logged and dropped.
//
// Entries without a proxy tag are appended in document order. Proxy entries
// are resolved on a bounded worker pool and appended after every resolution
// has finished, so their relative order is not guaranteed to match document
// order. Parse blocks until all resolutions complete.
func (p *Parser) Parse(data []byte) ([]Item, error) {
	var lines []string
	for line := range strings.Lines(string(data)) {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, ErrInvalidFormat
	}
	if fields := strings.Fields(lines[0]); len(fields) == 0 || fields[0] != directiveHeader {
		return nil, ErrInvalidHeader
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sem      = make(chan struct{}, maxResolvers)
		items    []Item
		resolved []Item
	)

	for i := 1; i < len(lines); i++ {
		line := lines[i]

		var prefix string
		switch {
		case strings.HasPrefix(line, directiveVariant):
			prefix = directiveVariant
		case strings.HasPrefix(line, directiveEntry):
			prefix = directiveEntry
		default:
			continue
		}

		raw := strings.TrimPrefix(line[len(prefix):], ":")
		tags := splitTags(raw)

		var (
			group     string
			proxyKind string
			title     string
			logoURL   *url.URL
			bandwidth int
		)
		for _, tag := range tags {
			switch {
			case strings.HasPrefix(tag, tagGroupTitle):
				group = strings.TrimSpace(strings.ReplaceAll(tagValue(tag), ",", ""))
			case strings.HasPrefix(tag, tagProxy):
				proxyKind = tagValue(tag)
			case strings.HasPrefix(tag, tagBandwidth):
				bandwidth, _ = strconv.Atoi(tagValue(tag))
			case strings.HasPrefix(tag, tagLogo):
				logo := strings.TrimSpace(tagValue(tag))
				if strings.HasPrefix(logo, schemeHTTP) {
					if u, err := url.Parse(logo); err == nil {
						logoURL = u
					}
				}
			case !strings.Contains(tag, "="):
				title = strings.TrimSpace(tag)
			}
		}

		// Advance past up to two auxiliary directive lines.
		i++
		for range 2 {
			if i >= len(lines) {
				break
			}
			next := strings.ReplaceAll(lines[i], " ", "")
			if strings.HasPrefix(next, directiveGroup) || strings.HasPrefix(next, directivePlayerOption) {
				i++
			}
		}
		if i >= len(lines) {
			break
		}

		ref := strings.ReplaceAll(lines[i], " ", "")
		if !p.acceptable(ref) {
			p.logger.Debug("dropping entry without playable stream reference", "title", title)
			metrics.RecordEntryDropped("unplayable_reference")
			continue
		}
		streamURL, err := url.Parse(ref)
		if err != nil {
			p.logger.Debug("dropping entry with unparsable stream reference", "title", title, "reference", ref)
			metrics.RecordEntryDropped("invalid_url")
			continue
		}

		item := Item{
			Title:     title,
			Group:     group,
			Logo:      logoURL,
			Bandwidth: bandwidth,
		}

		if proxyKind == "" {
			item.URL = streamURL
			items = append(items, item)
			metrics.RecordEntryParsed()
			continue
		}

		if p.resolver == nil {
			// No resolver wired: keep the literal reference, same as an
			// unknown proxy kind.
			item.URL = streamURL
			items = append(items, item)
			metrics.RecordEntryParsed()
			continue
		}

		wg.Add(1)
		go func(kind string, source *url.URL, item Item) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			stream, err := p.resolver.Resolve(kind, source)
			if errors.Is(err, ErrUnknownProxyKind) {
				stream, err = source, nil
			}
			if err != nil {
				p.logger.Error("cannot resolve proxy stream", "kind", kind, "source", source, "error", err)
				metrics.RecordEntryDropped("resolution_failed")
				return
			}
			item.URL = stream
			mu.Lock()
			resolved = append(resolved, item)
			mu.Unlock()
			metrics.RecordEntryParsed()
		}(proxyKind, streamURL, item)
	}

	wg.Wait()
	items = append(items, resolved...)
	return items, nil
}

// acceptable reports whether a stream reference line is playable.
func (p *Parser) acceptable(ref string) bool {
	if strings.HasPrefix(ref, schemeHTTP) || strings.HasPrefix(ref, schemeFile) {
		return true
	}
	if p.accept != nil {
		return p.accept(ref)
	}
	return false
}

// tagValue returns everything after the first "=" in a tag with quotes
// stripped.
func tagValue(tag string) string {
	_, v, _ := strings.Cut(tag, "=")
	return strings.ReplaceAll(v, "\"", "")
}

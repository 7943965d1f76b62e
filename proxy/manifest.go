package proxy

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

// ManifestStrategy resolves proxies whose source URL serves a small JSON
// document describing one or more encoded variant stream URLs. The first
// variant wins.
type ManifestStrategy struct {
	client     *http.Client
	playerHint string
}

// NewManifestStrategy creates the strategy. When playerHint is non-empty it
// is appended to the resolved URL as a player= query parameter.
func NewManifestStrategy(client *http.Client, playerHint string) *ManifestStrategy {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &ManifestStrategy{client: client, playerHint: playerHint}
}

type manifestPayload struct {
	Variants []struct {
		URL string `json:"url"`
	} `json:"variants"`
}

func (s *ManifestStrategy) resolve(source *url.URL) (*url.URL, error) {
	resp, err := s.client.Get(source.String())
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var payload manifestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(payload.Variants) == 0 {
		return nil, ErrEmptyManifest
	}

	raw := payload.Variants[0].URL
	if s.playerHint != "" {
		raw += "&player=" + s.playerHint
	}
	stream, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse variant url: %w", err)
	}
	return stream, nil
}

// Package channels turns raw playlist items into the normalized,
// deduplicated, favorite-ordered channel list the player consumes.
package channels

import (
	"net/url"
	"strings"
)

// Channel is the canonical playback unit.
type Channel struct {
	// ID is the stable identity used for deduplication.
	ID string
	// Name is the full channel name as authored in the playlist.
	Name string
	// Original is Name with availability and region annotations stripped.
	Original string
	// Short is Original with resolution and quality suffixes stripped.
	Short string
	// Stream is the resolved playable URL.
	Stream *url.URL
	// Group is the optional category the playlist assigns the channel to.
	Group string
	// Logo is the optional channel artwork URL.
	Logo *url.URL
}

// Identity derives a channel's deduplication key. Which strategy fits is
// provider-dependent: names are usually stable, but some providers repeat
// names across distinct streams.
type Identity func(ch Channel) string

// IdentityByName keys channels by their case-normalized full name.
func IdentityByName(ch Channel) string {
	return strings.ToLower(strings.TrimSpace(ch.Name))
}

// IdentityByStream keys channels by their resolved stream URL.
func IdentityByStream(ch Channel) string {
	if ch.Stream == nil {
		return ""
	}
	return ch.Stream.String()
}

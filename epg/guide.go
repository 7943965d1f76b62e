package epg

import (
	"sort"
	"sync"
	"time"
)

// Programme is one scheduled programme on a channel.
type Programme struct {
	Title string
	Start time.Time
	Stop  time.Time
}

// Guide is an in-memory programme schedule keyed by channel name.
//
// It is a write-only side effect of stream resolution: the stitcher strategy
// opportunistically caches the schedule payload embedded in its bootstrap
// response here, and the channel-list UI reads it back by channel name.
// Nothing in playback depends on it.
type Guide struct {
	mu         sync.RWMutex
	programmes map[string][]Programme
	now        func() time.Time
}

// NewGuide creates an empty Guide.
func NewGuide() *Guide {
	return &Guide{
		programmes: make(map[string][]Programme),
		now:        time.Now,
	}
}

// SetProgrammes replaces the schedule for a channel. Programmes are kept
// sorted by start time.
func (g *Guide) SetProgrammes(channel string, programmes []Programme) {
	sorted := make([]Programme, len(programmes))
	copy(sorted, programmes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	g.programmes[channel] = sorted
}

// Programmes returns the schedule for a channel, or nil if none is known.
func (g *Guide) Programmes(channel string) []Programme {
	g.mu.RLock()
	defer g.mu.RUnlock()

	programmes, ok := g.programmes[channel]
	if !ok {
		return nil
	}
	out := make([]Programme, len(programmes))
	copy(out, programmes)
	return out
}

// Current returns the programme airing on a channel right now.
func (g *Guide) Current(channel string) (Programme, bool) {
	now := g.now()

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, p := range g.programmes[channel] {
		if !now.Before(p.Start) && now.Before(p.Stop) {
			return p, true
		}
	}
	return Programme{}, false
}

// Channels returns the names of all channels with a known schedule.
func (g *Guide) Channels() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	channels := make([]string, 0, len(g.programmes))
	for name := range g.programmes {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	return channels
}

package channels

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/alorle/iptv-engine/m3u"
	"github.com/alorle/iptv-engine/metrics"
)

// Annotation substrings stripped from channel names, applied in order.
var (
	defaultRestrictionKeys = []string{
		" [Not 24/7]",
		" [Geo-blocked]",
	}
	defaultQualityKeys = []string{
		" FHD",
		" UHD",
		" HD",
		" 4K",
		" (1080p)",
		" (720p)",
		" (480p)",
		" (360p)",
	}
)

// Builder converts raw playlist items into an ordered channel list.
type Builder struct {
	restrictionKeys []string
	qualityKeys     []string
	identity        Identity
	blacklist       map[string]struct{}
	favorites       []string
	allowlist       []string
	logger          *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithRestrictionKeys replaces the availability/region annotations stripped
// from names.
func WithRestrictionKeys(keys ...string) BuilderOption {
	return func(b *Builder) { b.restrictionKeys = keys }
}

// WithQualityKeys replaces the resolution/quality annotations stripped from
// names.
func WithQualityKeys(keys ...string) BuilderOption {
	return func(b *Builder) { b.qualityKeys = keys }
}

// WithIdentity sets the deduplication identity strategy.
func WithIdentity(id Identity) BuilderOption {
	return func(b *Builder) { b.identity = id }
}

// WithBlacklist drops entries whose stream host is listed.
func WithBlacklist(hosts ...string) BuilderOption {
	return func(b *Builder) {
		for _, h := range hosts {
			b.blacklist[strings.ToLower(h)] = struct{}{}
		}
	}
}

// WithFavorites moves channels matching the given names to the front of the
// built list, in the order given here.
func WithFavorites(names ...string) BuilderOption {
	return func(b *Builder) { b.favorites = names }
}

// WithAllowlist keeps only channels matching one of the given names. An empty
// list keeps everything.
func WithAllowlist(names ...string) BuilderOption {
	return func(b *Builder) { b.allowlist = names }
}

// WithBuilderLogger sets the logger used for per-entry diagnostics.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a Builder with the given options. By default channels
// are keyed by name and nothing is filtered.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		restrictionKeys: defaultRestrictionKeys,
		qualityKeys:     defaultQualityKeys,
		identity:        IdentityByName,
		blacklist:       make(map[string]struct{}),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces the final channel list: names normalized, blacklisted
// sources removed, duplicates collapsed to their first occurrence, favorites
// moved to the front. Build is deterministic; running it twice on the same
// items yields the same output.
func (b *Builder) Build(items []m3u.Item) []Channel {
	var channels []Channel
	seen := make(map[string]struct{})

	for _, item := range items {
		ch := b.normalize(item)

		if ch.Stream != nil {
			if _, ok := b.blacklist[strings.ToLower(ch.Stream.Host)]; ok {
				b.logger.Debug("dropping blacklisted channel", "name", ch.Name, "host", ch.Stream.Host)
				metrics.RecordEntryDropped("blacklisted_host")
				continue
			}
		}
		if !b.allowed(ch) {
			metrics.RecordEntryDropped("not_allowlisted")
			continue
		}

		if _, ok := seen[ch.ID]; ok {
			b.logger.Debug("dropping duplicate channel", "name", ch.Name, "id", ch.ID)
			metrics.RecordEntryDropped("duplicate")
			continue
		}
		seen[ch.ID] = struct{}{}
		channels = append(channels, ch)
	}

	return b.reorder(channels)
}

func (b *Builder) normalize(item m3u.Item) Channel {
	original := item.Title
	for _, key := range b.restrictionKeys {
		original = strings.ReplaceAll(original, key, "")
	}
	original = strings.TrimSpace(original)

	short := original
	for _, key := range b.qualityKeys {
		short = strings.ReplaceAll(short, key, "")
	}
	short = strings.TrimSpace(short)

	ch := Channel{
		Name:     item.Title,
		Original: original,
		Short:    short,
		Stream:   item.URL,
		Group:    item.Group,
		Logo:     item.Logo,
	}
	ch.ID = b.identity(ch)
	return ch
}

func (b *Builder) allowed(ch Channel) bool {
	if len(b.allowlist) == 0 {
		return true
	}
	for _, name := range b.allowlist {
		if matchesName(ch.Short, name) {
			return true
		}
	}
	return false
}

// reorder partitions channels into favorites and the rest. Favorites come
// first in the favorites list's own order; within one favorite slot, and
// among the rest, source order is preserved.
func (b *Builder) reorder(channels []Channel) []Channel {
	if len(b.favorites) == 0 {
		return channels
	}

	taken := make([]bool, len(channels))
	ordered := make([]Channel, 0, len(channels))
	for _, fav := range b.favorites {
		for i, ch := range channels {
			if taken[i] || !matchesName(ch.Short, fav) {
				continue
			}
			taken[i] = true
			ordered = append(ordered, ch)
		}
	}
	for i, ch := range channels {
		if !taken[i] {
			ordered = append(ordered, ch)
		}
	}
	return ordered
}

// SortByName orders channels alphabetically by short name, ascending or
// descending. The sort is stable so equal names keep their relative order.
func SortByName(channels []Channel, descending bool) {
	sort.SliceStable(channels, func(i, j int) bool {
		a, b := strings.ToLower(channels[i].Short), strings.ToLower(channels[j].Short)
		if descending {
			return a > b
		}
		return a < b
	})
}

// matchesName reports whether two channel names refer to the same channel.
// Besides exact case-insensitive equality it tolerates an "HD" suffix on
// either side, so "TV3" matches "TV3 HD".
func matchesName(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return true
	}
	longer, shorter := a, b
	if len(longer) < len(shorter) {
		longer, shorter = shorter, longer
	}
	return strings.HasPrefix(longer, shorter) &&
		len(longer)-len(shorter) <= 3 &&
		strings.HasSuffix(longer, " hd")
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesParsed tracks playlist entries that made it into the final item list
	EntriesParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_entries_parsed_total",
		Help: "Total number of playlist entries parsed successfully",
	})

	// EntriesDropped tracks playlist entries dropped during parsing, by reason
	EntriesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_entries_dropped_total",
		Help: "Total number of playlist entries dropped during parsing",
	}, []string{"reason"})

	// ProxyResolutions tracks proxy stream resolutions by kind and outcome
	ProxyResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_proxy_resolutions_total",
		Help: "Total number of proxy stream resolutions",
	}, []string{"kind", "outcome"})

	// ProxyCacheHits tracks proxy cache hits by kind
	ProxyCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_proxy_cache_hits_total",
		Help: "Total number of proxy resolution cache hits",
	}, []string{"kind"})

	// ProxyCacheMisses tracks proxy cache misses (including expired entries) by kind
	ProxyCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iptv_proxy_cache_misses_total",
		Help: "Total number of proxy resolution cache misses",
	}, []string{"kind"})

	// PlaylistsStored tracks the number of playlists currently persisted
	PlaylistsStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iptv_playlists_stored",
		Help: "Number of playlists currently persisted in the store",
	})

	// PinFailures tracks rejected PIN verifications and decrypts
	PinFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_pin_failures_total",
		Help: "Total number of rejected PIN verifications",
	})
)

// RecordEntryParsed increments the parsed entry counter
func RecordEntryParsed() {
	EntriesParsed.Inc()
}

// RecordEntryDropped increments the dropped entry counter for a reason
func RecordEntryDropped(reason string) {
	EntriesDropped.WithLabelValues(reason).Inc()
}

// RecordProxyResolution increments the resolution counter for a kind and outcome
func RecordProxyResolution(kind, outcome string) {
	ProxyResolutions.WithLabelValues(kind, outcome).Inc()
}

// RecordProxyCacheHit increments the proxy cache hit counter for a kind
func RecordProxyCacheHit(kind string) {
	ProxyCacheHits.WithLabelValues(kind).Inc()
}

// RecordProxyCacheMiss increments the proxy cache miss counter for a kind
func RecordProxyCacheMiss(kind string) {
	ProxyCacheMisses.WithLabelValues(kind).Inc()
}

// SetPlaylistsStored sets the persisted playlist gauge
func SetPlaylistsStored(count int) {
	PlaylistsStored.Set(float64(count))
}

// RecordPinFailure increments the PIN failure counter
func RecordPinFailure() {
	PinFailures.Inc()
}

package fetcher

// Interface defines the contract for fetching playlist content with caching
type Interface interface {
	// FetchWithCache fetches playlist content with cache-first strategy
	// Returns: content, fromCache, stale, error
	FetchWithCache(url string) ([]byte, bool, bool, error)

	// FetchWithCacheFallback fetches playlist content with cache fallback
	// Returns: content, fromCache, error
	FetchWithCacheFallback(url string) ([]byte, bool, error)

	// IsExpired checks if the cached content for the URL is expired
	IsExpired(url string) (bool, error)
}

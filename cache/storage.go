// Package cache provides a file-backed cache for fetched playlist documents,
// letting the engine serve a stale copy when an upstream source is down.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// Storage defines the interface for cache operations
type Storage interface {
	Get(key string) (*Entry, error)
	Set(key string, content []byte) error
	IsExpired(key string, ttl time.Duration) (bool, error)
}

// Entry represents a cached item with its metadata
type Entry struct {
	Content   []byte    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IsExpired reports whether the entry is older than ttl.
func (e *Entry) IsExpired(ttl time.Duration) bool {
	return time.Since(e.Timestamp) > ttl
}

// FileStorage implements Storage using the file system. Writes go through a
// temp file and a rename, so a crashed write never leaves a torn entry.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates a new file-based cache storage
// It ensures the cache directory exists before returning
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileStorage{
		baseDir: baseDir,
	}, nil
}

// Get retrieves a cached entry by key
func (fs *FileStorage) Get(key string) (*Entry, error) {
	data, err := os.ReadFile(fs.getFilePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("cache entry not found: %w", err)
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return &entry, nil
}

// Set stores content in the cache with the current timestamp
func (fs *FileStorage) Set(key string, content []byte) error {
	entry := Entry{
		Content:   content,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	filePath := fs.getFilePath(key)
	tmp, err := os.CreateTemp(fs.baseDir, ".cache-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	return nil
}

// IsExpired checks if a cache entry has exceeded the TTL
func (fs *FileStorage) IsExpired(key string, ttl time.Duration) (bool, error) {
	entry, err := fs.Get(key)
	if err != nil {
		// If entry doesn't exist, consider it expired
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("failed to check expiration: %w", err)
	}

	return entry.IsExpired(ttl), nil
}

// getFilePath generates a file path from a cache key
// The key is hashed to create a safe filename
func (fs *FileStorage) getFilePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	filename := hex.EncodeToString(hash[:]) + ".json"
	return filepath.Join(fs.baseDir, filename)
}

// DeriveKeyFromURL creates a cache key from a source URL
func DeriveKeyFromURL(url string) string {
	return url
}

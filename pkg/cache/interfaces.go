//go:generate mockgen -destination=mocks/cache.go . Manager
package cache

import "time"

// Manager defines the interface for the response cache.
type Manager interface {
	// Get returns the entry for key if it was written no longer than maxAge ago.
	// Read failures are reported as misses.
	Get(key Key, maxAge time.Duration) ([]byte, bool)
	// Put stores data under key, replacing any previous entry.
	Put(key Key, data []byte) error
	// Flush removes every entry.
	Flush() error
	Clean(options CleanOptions) (*CleanResult, error)
	GetInfo() (*Info, error)
	GetDirectory() string
	SetDirectory(dir string) error
}

// CleanOptions specifies what to clean from the cache.
type CleanOptions struct {
	// OlderThan limits cleaning to entries last written before now minus OlderThan.
	// Zero cleans every entry.
	OlderThan time.Duration
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	FilesRemoved int
	TotalFreed   int64
}

// Info represents cache information.
type Info struct {
	Directory string
	TotalSize int64
	Files     int
	Oldest    time.Time
	Newest    time.Time
}

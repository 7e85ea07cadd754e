package cache

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/fsutil"
)

// FileCache implements Manager with one file per key. Freshness is judged from the
// file modification time; entries are never expired on their own, only by Flush or Clean.
type FileCache struct {
	fs  afero.Fs
	now func() time.Time

	mu        sync.RWMutex
	directory string
}

// Option configures a FileCache.
type Option func(*FileCache)

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *FileCache) { c.now = now }
}

// NewManager creates a file cache rooted at directory.
func NewManager(fsys afero.Fs, directory string, opts ...Option) *FileCache {
	c := &FileCache{fs: fsys, directory: directory, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefaultManager creates a file cache in the default response cache directory.
func NewDefaultManager(fsys afero.Fs) (*FileCache, error) {
	dir, err := fsutil.GetResponseCacheDir()
	if err != nil {
		return nil, errutils.Wrapf(err, "failed to get user cache directory")
	}
	if err := fsutil.EnsureDirMode(fsys, dir, CacheDirPerm); err != nil {
		return nil, errutils.Wrapf(err, "failed to create cache directory")
	}
	return NewManager(fsys, dir), nil
}

func (c *FileCache) path(key Key) string {
	return filepath.Join(c.GetDirectory(), key.FileName())
}

// Get returns the entry for key when now - mtime <= maxAge.
func (c *FileCache) Get(key Key, maxAge time.Duration) ([]byte, bool) {
	p := c.path(key)
	info, err := c.fs.Stat(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Debug("Cache stat failed", logger.Fields{"key": key.String(), "error": err.Error()})
		}
		return nil, false
	}
	if c.now().Sub(info.ModTime()) > maxAge {
		return nil, false
	}
	data, err := afero.ReadFile(c.fs, p)
	if err != nil {
		logger.Debug("Cache read failed", logger.Fields{"key": key.String(), "error": err.Error()})
		return nil, false
	}
	return data, true
}

// Put writes data for key, replacing the previous entry atomically.
func (c *FileCache) Put(key Key, data []byte) error {
	dir := c.GetDirectory()
	if err := fsutil.EnsureDirMode(c.fs, dir, CacheDirPerm); err != nil {
		return errutils.Wrap(errors.Join(ErrCacheWrite, err), key.String())
	}
	if err := fsutil.WriteFileAtomic(c.fs, c.path(key), data, CacheFilePerm); err != nil {
		return errutils.Wrap(errors.Join(ErrCacheWrite, err), key.String())
	}
	return nil
}

// Flush deletes every cache entry.
func (c *FileCache) Flush() error {
	_, err := c.Clean(CleanOptions{})
	return err
}

// Clean removes cached entries according to the specified options.
func (c *FileCache) Clean(options CleanOptions) (*CleanResult, error) {
	result := &CleanResult{}
	entries, err := c.entries()
	if err != nil {
		return nil, errutils.Wrap(errors.Join(ErrCacheClean, err), c.GetDirectory())
	}

	cutoff := c.now().Add(-options.OlderThan)
	for _, e := range entries {
		if options.OlderThan > 0 && !e.ModTime().Before(cutoff) {
			continue
		}
		if err := c.fs.Remove(filepath.Join(c.GetDirectory(), e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return result, errutils.Wrapf(errors.Join(ErrCacheClean, err), "removing %s", e.Name())
		}
		result.FilesRemoved++
		result.TotalFreed += e.Size()
	}

	logger.Debug("Cache cleaned", logger.Fields{"files": result.FilesRemoved, "bytes": result.TotalFreed})
	return result, nil
}

// GetInfo returns information about the cache.
func (c *FileCache) GetInfo() (*Info, error) {
	info := &Info{Directory: c.GetDirectory()}
	entries, err := c.entries()
	if err != nil {
		return nil, errutils.Wrap(errors.Join(ErrCacheInfo, err), info.Directory)
	}
	for _, e := range entries {
		info.Files++
		info.TotalSize += e.Size()
		if info.Oldest.IsZero() || e.ModTime().Before(info.Oldest) {
			info.Oldest = e.ModTime()
		}
		if e.ModTime().After(info.Newest) {
			info.Newest = e.ModTime()
		}
	}
	return info, nil
}

// GetDirectory returns the cache directory path.
func (c *FileCache) GetDirectory() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.directory
}

// SetDirectory sets the cache directory path.
func (c *FileCache) SetDirectory(dir string) error {
	if dir == "" {
		return ErrCacheDirectory
	}
	c.mu.Lock()
	c.directory = dir
	c.mu.Unlock()
	return nil
}

// entries lists cache files, skipping directories and in-flight temp files.
// A missing directory is an empty cache.
func (c *FileCache) entries() ([]fs.FileInfo, error) {
	dir := c.GetDirectory()
	exists, err := afero.DirExists(c.fs, dir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	infos, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		return nil, err
	}
	out := make([]fs.FileInfo, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), FileExt) {
			continue
		}
		out = append(out, fi)
	}
	return out, nil
}

package cache

import "github.com/glorpus-work/pkgconnect/pkg/fsutil"

const (
	// CacheDirPerm is the default permission mode for cache directories (rwx------).
	CacheDirPerm = fsutil.DirModePrivate

	// CacheFilePerm is the permission mode of cached response files.
	CacheFilePerm = fsutil.FileModeSecure

	// FileExt is appended to every cache entry file name.
	FileExt = ".json"
)

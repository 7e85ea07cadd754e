// Package fsutil provides permission constants, default directories and small
// afero-based helpers shared by the cache, identity and download storage.
package fsutil

// File and directory permission constants.
const (
	FileModeDefault = 0o644 // -rw-r--r--: cache entries, downloaded bundles
	FileModeSecure  = 0o640 // -rw-r-----: identity and configuration files

	DirModeDefault = 0o755 // drwxr-xr-x
	DirModeSecure  = 0o750 // drwxr-x---
	DirModePrivate = 0o700 // drwx------
)

package fsutil

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// EnsureDir creates path and its parents with DirModeDefault if they don't exist.
func EnsureDir(fs afero.Fs, path string) error {
	return fs.MkdirAll(path, DirModeDefault)
}

// EnsureFileDir creates the parent directory of filePath.
func EnsureFileDir(fs afero.Fs, filePath string) error {
	return EnsureDir(fs, filepath.Dir(filePath))
}

// EnsureDirMode creates path with the given permissions.
func EnsureDirMode(fs afero.Fs, path string, perm os.FileMode) error {
	return fs.MkdirAll(path, perm)
}

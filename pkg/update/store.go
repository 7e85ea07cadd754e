// Package update defines the local package service that receives downloaded bundles,
// with a filesystem-backed implementation.
package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mholt/archives"
	"github.com/spf13/afero"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/fsutil"
	"github.com/glorpus-work/pkgconnect/pkg/model"
)

// FileStore keeps accepted bundles in a directory, one file per package id.
// Bundles must be archives in a format mholt/archives recognizes.
type FileStore struct {
	fs  afero.Fs
	dir string
	now func() time.Time

	mu sync.Mutex
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(fsys afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fsys, dir: dir, now: time.Now}
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// AddPackage copies the bundle at path into the store. The package id is the bundle's file name.
func (s *FileStore) AddPackage(ctx context.Context, path string) (*model.LocalPackage, error) {
	id := filepath.Base(path)
	if id == "" || id == "." || id == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: no package id in %q", ErrPackage, path)
	}

	src, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackage, err)
	}
	defer func() { _ = src.Close() }()

	if info, err := src.Stat(); err != nil || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty or unreadable", ErrPackage, path)
	}

	format, _, err := archives.Identify(ctx, id, src)
	if err != nil {
		if errors.Is(err, archives.NoMatch) {
			return nil, fmt.Errorf("%w: %s is not a recognized archive", ErrPackage, path)
		}
		return nil, fmt.Errorf("%w: identifying %s: %v", ErrPackage, path, err)
	}
	ext := format.Extension()

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.dir, strings.TrimSuffix(id, ext)+ext)
	exists, err := afero.Exists(s.fs, target)
	if err != nil {
		return nil, errutils.Wrapf(err, "checking %s", target)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, errutils.Wrapf(err, "rewinding %s", path)
	}
	size, err := s.copyInto(src, target)
	if err != nil {
		return nil, err
	}

	pkg := &model.LocalPackage{
		ID:      strings.TrimSuffix(id, ext),
		Path:    target,
		Format:  strings.TrimPrefix(ext, "."),
		Size:    size,
		AddedAt: s.now(),
	}
	logger.Info("Package added to local store", logger.Fields{"id": pkg.ID, "format": pkg.Format, "path": target})
	return pkg, nil
}

func (s *FileStore) copyInto(src io.Reader, target string) (int64, error) {
	if err := fsutil.EnsureDir(s.fs, s.dir); err != nil {
		return 0, errutils.Wrapf(err, "creating store directory %s", s.dir)
	}
	tmp, err := afero.TempFile(s.fs, s.dir, ".add-*")
	if err != nil {
		return 0, errutils.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return 0, errutils.Wrapf(err, "copying package to %s", target)
	}
	if err := s.fs.Rename(tmpName, target); err != nil {
		_ = s.fs.Remove(tmpName)
		return 0, errutils.Wrapf(err, "finalizing %s", target)
	}
	return n, nil
}

package download

import (
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/glorpus-work/pkgconnect/pkg/fsutil"
	"github.com/glorpus-work/pkgconnect/pkg/model"
	"github.com/glorpus-work/pkgconnect/pkg/pool"
)

// State is the lifecycle position of a download.
type State int32

// Download states. A failed download returns to StateRemote.
const (
	StateCreated State = iota
	StateRemote
	StateDownloading
	StateDownloaded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRemote:
		return "remote"
	case StateDownloading:
		return "downloading"
	case StateDownloaded:
		return "downloaded"
	default:
		return "unknown"
	}
}

// DownloadingPackage is the handle of one package download.
// The descriptor is fixed at creation; everything else changes while the download runs.
type DownloadingPackage struct {
	desc model.PackageDescriptor
	path string
	fs   afero.Fs

	mu           sync.RWMutex
	state        State
	expectedSize int64
	completed    bool
	serverError  bool
	err          error

	task     atomic.Pointer[pool.Task]
	done     chan struct{}
	doneOnce sync.Once
}

func newDownloadingPackage(fsys afero.Fs, desc model.PackageDescriptor, path string) *DownloadingPackage {
	return &DownloadingPackage{
		desc:         desc,
		path:         path,
		fs:           fsys,
		expectedSize: desc.Size,
		done:         make(chan struct{}),
	}
}

// ID returns the package id.
func (d *DownloadingPackage) ID() string { return d.desc.ID }

// Descriptor returns the descriptor the download was created from.
func (d *DownloadingPackage) Descriptor() model.PackageDescriptor { return d.desc }

// Path returns the local file the package is written to.
func (d *DownloadingPackage) Path() string { return d.path }

func (d *DownloadingPackage) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// ExpectedSize returns the expected byte count, or 0 while unknown.
func (d *DownloadingPackage) ExpectedSize() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.expectedSize
}

// Completed reports whether the download has terminated, successfully or not.
func (d *DownloadingPackage) Completed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.completed
}

// ServerError reports whether the last failure is attributed to the server or the network.
func (d *DownloadingPackage) ServerError() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.serverError
}

// Err returns the last failure, or nil.
func (d *DownloadingPackage) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// LastError returns the message of the last failure, or "".
func (d *DownloadingPackage) LastError() string {
	if err := d.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// Progress returns floor(bytes on disk * 100 / expected size), capped at 100.
// It is 0 while the size is unknown or nothing has been written.
func (d *DownloadingPackage) Progress() int {
	expected := d.ExpectedSize()
	if expected <= 0 {
		return 0
	}
	written, ok := fsutil.FileSize(d.fs, d.path)
	if !ok {
		return 0
	}
	p := written * 100 / expected
	if p > 100 {
		return 100
	}
	return int(p)
}

// Done is closed once the download has terminated.
func (d *DownloadingPackage) Done() <-chan struct{} {
	return d.done
}

func (d *DownloadingPackage) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *DownloadingPackage) setExpectedSize(n int64) {
	d.mu.Lock()
	if d.expectedSize <= 0 && n > 0 {
		d.expectedSize = n
	}
	d.mu.Unlock()
}

func (d *DownloadingPackage) fail(err error, serverError bool) {
	d.mu.Lock()
	d.state = StateRemote
	d.err = err
	d.serverError = serverError
	d.mu.Unlock()
}

func (d *DownloadingPackage) complete() {
	d.doneOnce.Do(func() {
		d.mu.Lock()
		d.completed = true
		d.mu.Unlock()
		close(d.done)
	})
}

package download

import (
	"context"
	"net/url"

	"github.com/glorpus-work/pkgconnect/pkg/model"
)

// Manager tracks package downloads that are queued or in flight.
// Finished downloads drop out of the bookkeeping; their handles stay usable.
type Manager interface {
	// ListDownloadingPackages returns the handles of all queued and running downloads.
	ListDownloadingPackages() []*DownloadingPackage

	// StoreDownloadedBundle schedules the download of desc. If a download for the same
	// package id is already tracked, its handle is returned and nothing new is scheduled.
	StoreDownloadedBundle(ctx context.Context, desc model.PackageDescriptor) (*DownloadingPackage, error)

	// RemoveDownloadingPackage drops the download from the bookkeeping, cancelling it if
	// it has not started yet. It reports whether a download was tracked under id.
	RemoveDownloadingPackage(id string) bool

	// GetDownloadingPackage returns the tracked download for id, or nil.
	GetDownloadingPackage(id string) *DownloadingPackage
}

// URLResolver turns a descriptor location, possibly relative, into an absolute URL.
type URLResolver interface {
	ResolveURL(ref string) (*url.URL, error)
}

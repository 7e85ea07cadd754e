//go:generate mockgen -destination=mocks/update.go . Service
package update

import (
	"context"

	"github.com/glorpus-work/pkgconnect/pkg/model"
)

// Service accepts downloaded bundles into local package storage.
type Service interface {
	// AddPackage registers the bundle at path. It fails with ErrAlreadyExists when the
	// package is already known and with ErrPackage when the bundle is unusable.
	AddPackage(ctx context.Context, path string) (*model.LocalPackage, error)
}

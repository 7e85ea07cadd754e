package update

import "fmt"

var (
	// ErrAlreadyExists is returned when the package is already present in the store.
	ErrAlreadyExists = fmt.Errorf("package already exists")

	// ErrPackage is returned when a bundle cannot be accepted.
	ErrPackage = fmt.Errorf("invalid package")
)

package registry

import "errors"

var (
	// ErrNoServices is returned when a registry is built from an empty list.
	ErrNoServices = errors.New("registry has no services")

	// ErrDuplicateService is returned when two descriptors share a name.
	ErrDuplicateService = errors.New("duplicate service name")

	// ErrInvalidDescriptor is returned for a descriptor with a bad base URL or prefix.
	ErrInvalidDescriptor = errors.New("invalid service descriptor")
)

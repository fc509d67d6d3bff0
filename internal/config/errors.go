package config

import "errors"

var (
	// ErrNoServices is returned when the configuration registers no backend service.
	ErrNoServices = errors.New("no services configured")

	// ErrDuplicateService is returned when two services share a name.
	ErrDuplicateService = errors.New("duplicate service name")

	// ErrInvalidService is returned when a service entry is malformed.
	ErrInvalidService = errors.New("invalid service")

	// ErrUnsupportedSource is returned for an unknown services_source driver.
	ErrUnsupportedSource = errors.New("unsupported services source driver")
)

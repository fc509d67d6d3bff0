package health

import "errors"

var (
	// ErrProbeTimeout is recorded when a health probe exceeds its timeout.
	ErrProbeTimeout = errors.New("health probe timed out")

	// ErrProbeUnreachable is recorded when the backend cannot be reached.
	ErrProbeUnreachable = errors.New("backend unreachable")

	// ErrProbeStatus is recorded when the backend answers with a non-2xx status.
	ErrProbeStatus = errors.New("unhealthy status code")
)

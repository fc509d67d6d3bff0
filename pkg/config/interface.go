package config

import "context"

// Source abstracts where the gateway's service list is stored
// (a local file, an etcd key, ...). The registry is static for the life
// of the process, so a source is read once at startup.
type Source interface {
	// Get retrieves the complete services document from the source.
	// The document is YAML with a top-level "services" list.
	Get(ctx context.Context) ([]byte, error)

	// Close releases any connection held by the source.
	Close() error
}

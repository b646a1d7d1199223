// Package adapter defines the contracts shared by every external resource
// connection carbonlake opens (object storage, run-history database).
package adapter

// ResourceConnection represents a named, closable connection to an external resource.
type ResourceConnection interface {
	// Close releases the underlying resource.
	Close() error
	// Type returns the backend type (e.g. "local", "gcs", "sqlite").
	Type() string
	// Name returns the configured connection name (e.g. "lake", "history").
	Name() string
}

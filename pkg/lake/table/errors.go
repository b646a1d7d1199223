package table

import (
	"errors"
	"fmt"
)

var (
	// ErrTableNotFound means no commit exists at the table location.
	ErrTableNotFound = errors.New("table: not found")
	// ErrConcurrentCommit means another writer created the same log version first.
	ErrConcurrentCommit = errors.New("table: concurrent commit")
)

// StorageReadError reports a table location that exists but cannot be
// replayed or read: a broken log, a missing data file, an undecodable file.
type StorageReadError struct {
	Path string
	Err  error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("table %s: storage read error: %v", e.Path, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }

// IsStorageReadError reports whether err wraps a StorageReadError.
func IsStorageReadError(err error) bool {
	var sre *StorageReadError
	return errors.As(err, &sre)
}

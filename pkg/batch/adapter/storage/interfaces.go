// Package storage defines the object-storage contract the table store is built on.
// Backends (local filesystem, GCS) expose flat object names; directories are
// implied by "/" separators in those names.
package storage

import (
	"context"
	"errors"
	"io"

	storageConfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/carbonlake/pkg/batch/core/adapter"
)

var (
	// ErrObjectNotFound is returned (wrapped) by Download when the object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrObjectExists is returned (wrapped) by UploadIfAbsent when the object already exists.
	ErrObjectExists = errors.New("storage: object already exists")
)

// StorageExecutor defines the object operations.
type StorageExecutor interface {
	// Upload writes data to objectName, replacing any existing object.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// UploadIfAbsent writes data to objectName only if no object exists there.
	// The check and the write are a single atomic step on every backend.
	UploadIfAbsent(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName for reading. The caller must close the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object whose name starts with prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named storage backend.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor

	// Config returns the configuration the connection was created from.
	Config() storageConfig.StorageConfig
	// LocalPath returns the filesystem path of objectName when the backend is
	// a local filesystem. The boolean is false for remote backends.
	LocalPath(bucket, objectName string) (string, bool)
}

// StorageProvider creates and caches connections of one backend type.
type StorageProvider interface {
	// GetConnection returns the connection with the given configured name.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes every connection created by this provider.
	CloseAll() error
	// Type returns the backend type handled by this provider.
	Type() string
}

// StorageConnectionResolver picks the provider for a named connection.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the fx value-group tag collecting every StorageProvider.
const StorageProviderGroup = `group:"storage_providers"`

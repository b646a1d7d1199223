// Package gcs provides a Google Cloud Storage implementation of the storage adapter interfaces.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/carbonlake/pkg/batch/core/config"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// ProviderType defines the type identifier for the GCS storage provider.
const ProviderType = "gcs"

type gcsAdapter struct {
	client *storage.Client
	cfg    storageConfig.StorageConfig
	name   string
}

var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// NewGCSAdapter opens a storage client. An empty CredentialsFile falls back
// to application default credentials.
func NewGCSAdapter(ctx context.Context, cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("gcs storage adapter '%s': bucket_name must be specified", name)
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create GCS client: %w", name, err)
	}
	return &gcsAdapter{client: client, cfg: cfg, name: name}, nil
}

func (a *gcsAdapter) Close() error                        { return a.client.Close() }
func (a *gcsAdapter) Type() string                        { return ProviderType }
func (a *gcsAdapter) Name() string                        { return a.name }
func (a *gcsAdapter) Config() storageConfig.StorageConfig { return a.cfg }

// LocalPath always reports false; objects live in a bucket.
func (a *gcsAdapter) LocalPath(bucket, objectName string) (string, bool) { return "", false }

func (a *gcsAdapter) bucket(bucket string) *storage.BucketHandle {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	return a.client.Bucket(bucket)
}

// objectKey prefixes objectName with BaseDir.
func (a *gcsAdapter) objectKey(objectName string) string {
	base := strings.Trim(a.cfg.BaseDir, "/")
	if base == "" {
		return objectName
	}
	return path.Join(base, objectName)
}

// Upload writes data to objectName, replacing any existing object.
func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	obj := a.bucket(bucket).Object(a.objectKey(objectName))
	return a.write(ctx, obj, objectName, data, contentType)
}

// UploadIfAbsent writes data with a DoesNotExist precondition; a lost race
// surfaces as HTTP 412 and is reported as storage.ErrObjectExists.
func (a *gcsAdapter) UploadIfAbsent(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	obj := a.bucket(bucket).Object(a.objectKey(objectName)).If(storage.Conditions{DoesNotExist: true})
	err := a.write(ctx, obj, objectName, data, contentType)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("object '%s': %w", objectName, storageAdapter.ErrObjectExists)
	}
	return err
}

func (a *gcsAdapter) write(ctx context.Context, obj *storage.ObjectHandle, objectName string, data io.Reader, contentType string) error {
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write '%s' to GCS: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS upload of '%s': %w", objectName, err)
	}
	logger.Debugf("Uploaded gs://%s/%s (gcs adapter '%s').", obj.BucketName(), obj.ObjectName(), a.name)
	return nil
}

// Download opens objectName for reading.
func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	reader, err := a.bucket(bucket).Object(a.objectKey(objectName)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object '%s': %w", objectName, storageAdapter.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to create reader for '%s': %w", objectName, err)
	}
	return reader, nil
}

// ListObjects calls fn with every object name below BaseDir that starts with prefix.
// Names are reported relative to BaseDir.
func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	base := strings.Trim(a.cfg.BaseDir, "/")
	query := &storage.Query{Prefix: a.objectKey(prefix)}
	if prefix == "" && base != "" {
		query.Prefix = base + "/"
	}

	it := a.bucket(bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects with prefix '%s': %w", query.Prefix, err)
		}
		name := attrs.Name
		if base != "" {
			name = strings.TrimPrefix(name, base+"/")
		}
		if err := fn(name); err != nil {
			return err
		}
	}
}

// DeleteObject removes objectName. A missing object is not an error.
func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	err := a.bucket(bucket).Object(a.objectKey(objectName)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete '%s': %w", objectName, err)
	}
	return nil
}

// GCSProvider creates and caches GCS connections.
type GCSProvider struct {
	cfg         *coreConfig.Config
	connections map[string]storageAdapter.StorageConnection
	mu          sync.Mutex
}

// NewGCSProvider creates a new GCSProvider.
func NewGCSProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return &GCSProvider{
		cfg:         cfg,
		connections: make(map[string]storageAdapter.StorageConnection),
	}
}

// GetConnection returns the cached connection for name, creating it on first use.
func (p *GCSProvider) GetConnection(name string) (storageAdapter.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	storageCfg, err := storageAdapter.DecodeStorageConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != ProviderType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, ProviderType, storageCfg.Type)
	}
	conn, err := NewGCSAdapter(context.Background(), storageCfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Debugf("Created new GCS storage connection '%s' (bucket '%s').", name, storageCfg.BucketName)
	return conn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *GCSProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GCS connection '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return errors.Join(errs...)
}

// Type returns "gcs".
func (p *GCSProvider) Type() string { return ProviderType }

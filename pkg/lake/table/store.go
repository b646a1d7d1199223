// Package table implements transactional, partitioned Parquet tables on top
// of a storage connection. Each table keeps a JSON commit log under
// <path>/_delta_log; a commit is published by creating the next numbered log
// file only if it does not exist yet.
package table

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

const engineInfo = "carbonlake-table/1"

// CommitResult summarizes a successful Overwrite.
type CommitResult struct {
	Version      int64
	RowsWritten  int
	FilesAdded   int
	FilesRemoved int
}

// Store reads and writes tables through one storage connection.
type Store struct {
	conn      storage.StorageConnection
	codec     compress.Codec
	codecName string
	now       func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store writing Parquet files with the named codec
// (snappy, zstd, gzip or none).
func NewStore(conn storage.StorageConnection, compression string, opts ...Option) (*Store, error) {
	codec, err := compressionCodec(compression)
	if err != nil {
		return nil, err
	}
	s := &Store{conn: conn, codec: codec, codecName: compression, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Connection returns the underlying storage connection.
func (s *Store) Connection() storage.StorageConnection { return s.conn }

// Exists reports whether the log at tablePath replays into a valid snapshot.
// Any error, including a corrupt log, reads as false.
func (s *Store) Exists(ctx context.Context, tablePath string) bool {
	_, err := loadSnapshot(ctx, s.conn, tablePath)
	if err != nil && !errors.Is(err, ErrTableNotFound) {
		logger.Debugf("Table '%s' treated as absent: %v", tablePath, err)
	}
	return err == nil
}

// ReadAll loads the current snapshot into a frame. Partition columns are
// restored from the log and typed per the table schema.
func (s *Store) ReadAll(ctx context.Context, tablePath string) (*frame.Frame, error) {
	snap, err := loadSnapshot(ctx, s.conn, tablePath)
	if err != nil {
		return nil, err
	}

	out := frame.New(snap.Fields...)
	kinds := make(map[string]frame.Kind, len(snap.Fields))
	for _, fd := range snap.Fields {
		kinds[fd.Name] = fd.Kind
	}
	dataKinds := make(map[string]frame.Kind, len(kinds))
	for name, k := range kinds {
		dataKinds[name] = k
	}
	for _, c := range snap.PartitionColumns {
		delete(dataKinds, c)
	}

	for _, rel := range snap.ActivePaths() {
		add := snap.Active[rel]
		data, err := s.download(ctx, path.Join(tablePath, rel))
		if err != nil {
			return nil, &StorageReadError{Path: tablePath, Err: fmt.Errorf("data file %s: %w", rel, err)}
		}
		rows, err := decodeParquet(data, dataKinds)
		if err != nil {
			return nil, &StorageReadError{Path: tablePath, Err: fmt.Errorf("data file %s: %w", rel, err)}
		}
		for _, r := range rows {
			for _, c := range snap.PartitionColumns {
				r[c] = partitionCell(kinds[c], add.PartitionValues[c])
			}
			out.Rows = append(out.Rows, r)
		}
	}
	logger.Debugf("Read %d rows from table '%s' at version %d (%d files).", out.Len(), tablePath, snap.Version, len(snap.Active))
	return out, nil
}

// ActiveFiles returns the object names of the data files of the current snapshot.
func (s *Store) ActiveFiles(ctx context.Context, tablePath string) ([]string, error) {
	snap, err := loadSnapshot(ctx, s.conn, tablePath)
	if err != nil {
		return nil, err
	}
	paths := snap.ActivePaths()
	for i, p := range paths {
		paths[i] = path.Join(tablePath, p)
	}
	return paths, nil
}

// History returns the commit info of every version, oldest first.
func (s *Store) History(ctx context.Context, tablePath string) ([]CommitInfo, error) {
	versions, err := listVersions(ctx, s.conn, tablePath)
	if err != nil {
		return nil, &StorageReadError{Path: tablePath, Err: err}
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%s: %w", tablePath, ErrTableNotFound)
	}
	history := make([]CommitInfo, 0, len(versions))
	for _, v := range versions {
		actions, err := readCommit(ctx, s.conn, tablePath, v)
		if err != nil {
			return nil, &StorageReadError{Path: tablePath, Err: err}
		}
		for _, a := range actions {
			if a.CommitInfo != nil {
				ci := *a.CommitInfo
				ci.Version = v
				history = append(history, ci)
				break
			}
		}
	}
	return history, nil
}

// Overwrite replaces the table content with f. Rows are written one Parquet
// file per partition, then a single commit removes every previously active
// file and adds the new ones. Files written for a commit that fails are
// deleted on a best-effort basis.
func (s *Store) Overwrite(ctx context.Context, tablePath string, f *frame.Frame, partitionBy []string) (CommitResult, error) {
	var result CommitResult
	for _, c := range partitionBy {
		if !f.Has(c) {
			return result, fmt.Errorf("table %s: partition column %q not in frame", tablePath, c)
		}
	}

	prev, err := loadSnapshot(ctx, s.conn, tablePath)
	switch {
	case errors.Is(err, ErrTableNotFound):
		prev = nil
	case err != nil:
		return result, err
	}

	fields := f.Fields()
	isPartition := make(map[string]bool, len(partitionBy))
	for _, c := range partitionBy {
		isPartition[c] = true
	}
	var dataFields []frame.Field
	for _, fd := range fields {
		if !isPartition[fd.Name] {
			dataFields = append(dataFields, fd)
		}
	}

	now := s.now().UTC()
	txnID := uuid.NewString()
	var adds []*addAction
	var written []string

	if f.Len() > 0 {
		for seq, bucket := range splitPartitions(f, partitionBy) {
			data, err := encodeParquet(dataFields, bucket.rows, s.codec)
			if err != nil {
				s.cleanup(ctx, written)
				return result, fmt.Errorf("table %s: encode partition '%s': %w", tablePath, bucket.dir, err)
			}
			rel := dataFileName(bucket.dir, seq, uuid.NewString(), s.codecName)
			objectName := path.Join(tablePath, rel)
			if err := s.conn.Upload(ctx, "", objectName, bytes.NewReader(data), "application/octet-stream"); err != nil {
				s.cleanup(ctx, written)
				return result, fmt.Errorf("table %s: upload %s: %w", tablePath, rel, err)
			}
			written = append(written, objectName)
			adds = append(adds, &addAction{
				Path:             rel,
				PartitionValues:  bucket.values,
				Size:             int64(len(data)),
				ModificationTime: now.UnixMilli(),
				DataChange:       true,
				NumRecords:       int64(len(bucket.rows)),
			})
		}
	}

	version := int64(0)
	var removes []*removeAction
	tableID := uuid.NewString()
	if prev != nil {
		version = prev.Version + 1
		tableID = prev.TableID
		for _, p := range prev.ActivePaths() {
			removes = append(removes, &removeAction{Path: p, DeletionTimestamp: now.UnixMilli(), DataChange: true})
		}
	}

	schemaString, err := encodeSchema(fields)
	if err != nil {
		s.cleanup(ctx, written)
		return result, fmt.Errorf("table %s: encode schema: %w", tablePath, err)
	}
	partitionJSON, _ := json.Marshal(partitionBy)
	if partitionBy == nil {
		partitionJSON = []byte("[]")
	}

	actions := []action{{CommitInfo: &CommitInfo{
		Timestamp:           now.UnixMilli(),
		Operation:           "WRITE",
		OperationParameters: map[string]string{"mode": "Overwrite", "partitionBy": string(partitionJSON)},
		OperationMetrics: map[string]int64{
			"numFiles":        int64(len(adds)),
			"numOutputRows":   int64(f.Len()),
			"numRemovedFiles": int64(len(removes)),
		},
		TxnID:      txnID,
		EngineInfo: engineInfo,
	}}}
	if version == 0 {
		actions = append(actions, action{Protocol: &protocol{MinReaderVersion: 1, MinWriterVersion: 2}})
	}
	actions = append(actions, action{MetaData: &metaData{
		ID:               tableID,
		Format:           format{Provider: "parquet"},
		SchemaString:     schemaString,
		PartitionColumns: append([]string{}, partitionBy...),
		Configuration:    map[string]string{},
		CreatedTime:      now.UnixMilli(),
	}})
	for _, r := range removes {
		actions = append(actions, action{Remove: r})
	}
	for _, a := range adds {
		actions = append(actions, action{Add: a})
	}

	payload, err := encodeCommit(actions)
	if err != nil {
		s.cleanup(ctx, written)
		return result, fmt.Errorf("table %s: encode commit: %w", tablePath, err)
	}
	if err := s.conn.UploadIfAbsent(ctx, "", commitName(tablePath, version), bytes.NewReader(payload), "application/json"); err != nil {
		s.cleanup(ctx, written)
		if errors.Is(err, storage.ErrObjectExists) {
			return result, fmt.Errorf("table %s: version %d: %w", tablePath, version, ErrConcurrentCommit)
		}
		return result, fmt.Errorf("table %s: commit version %d: %w", tablePath, version, err)
	}

	result = CommitResult{Version: version, RowsWritten: f.Len(), FilesAdded: len(adds), FilesRemoved: len(removes)}
	logger.Infof("Committed table '%s' version %d: %d rows, %d files added, %d removed.",
		tablePath, version, result.RowsWritten, result.FilesAdded, result.FilesRemoved)
	return result, nil
}

func (s *Store) download(ctx context.Context, objectName string) ([]byte, error) {
	rc, err := s.conn.Download(ctx, "", objectName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *Store) cleanup(ctx context.Context, objectNames []string) {
	var errs error
	for _, name := range objectNames {
		if err := s.conn.DeleteObject(ctx, "", name); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil {
		logger.Warnf("Failed to clean up files of an aborted commit: %v", errs)
	}
}

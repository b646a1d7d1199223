package table

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

const logDir = "_delta_log"

// action is one line of a commit file. Exactly one member is set.
type action struct {
	CommitInfo *CommitInfo   `json:"commitInfo,omitempty"`
	Protocol   *protocol     `json:"protocol,omitempty"`
	MetaData   *metaData     `json:"metaData,omitempty"`
	Add        *addAction    `json:"add,omitempty"`
	Remove     *removeAction `json:"remove,omitempty"`
}

// CommitInfo describes one table version, as returned by History.
type CommitInfo struct {
	Version             int64             `json:"-"`
	Timestamp           int64             `json:"timestamp"`
	Operation           string            `json:"operation"`
	OperationParameters map[string]string `json:"operationParameters,omitempty"`
	OperationMetrics    map[string]int64  `json:"operationMetrics,omitempty"`
	TxnID               string            `json:"txnId"`
	EngineInfo          string            `json:"engineInfo,omitempty"`
}

type protocol struct {
	MinReaderVersion int `json:"minReaderVersion"`
	MinWriterVersion int `json:"minWriterVersion"`
}

type metaData struct {
	ID               string            `json:"id"`
	Format           format            `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration"`
	CreatedTime      int64             `json:"createdTime"`
}

type format struct {
	Provider string `json:"provider"`
}

type addAction struct {
	Path             string             `json:"path"`
	PartitionValues  map[string]*string `json:"partitionValues"`
	Size             int64              `json:"size"`
	ModificationTime int64              `json:"modificationTime"`
	DataChange       bool               `json:"dataChange"`
	NumRecords       int64              `json:"numRecords"`
}

type removeAction struct {
	Path              string `json:"path"`
	DeletionTimestamp int64  `json:"deletionTimestamp"`
	DataChange        bool   `json:"dataChange"`
}

type structType struct {
	Type   string        `json:"type"`
	Fields []structField `json:"fields"`
}

type structField struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Nullable bool           `json:"nullable"`
	Metadata map[string]any `json:"metadata"`
}

var kindTypeNames = map[frame.Kind]string{
	frame.KindString:    "string",
	frame.KindFloat:     "double",
	frame.KindInt:       "long",
	frame.KindBool:      "boolean",
	frame.KindTimestamp: "timestamp",
}

func encodeSchema(fields []frame.Field) (string, error) {
	st := structType{Type: "struct", Fields: make([]structField, len(fields))}
	for i, fd := range fields {
		st.Fields[i] = structField{Name: fd.Name, Type: kindTypeNames[fd.Kind], Nullable: true, Metadata: map[string]any{}}
	}
	b, err := json.Marshal(st)
	return string(b), err
}

func decodeSchema(s string) ([]frame.Field, error) {
	var st structType
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return nil, fmt.Errorf("invalid schemaString: %w", err)
	}
	fields := make([]frame.Field, len(st.Fields))
	for i, sf := range st.Fields {
		kind, err := frame.ParseKind(sf.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = frame.Field{Name: sf.Name, Kind: kind}
	}
	return fields, nil
}

// snapshot is the replayed state of a table at one version.
type snapshot struct {
	Version          int64
	Fields           []frame.Field
	PartitionColumns []string
	Active           map[string]*addAction
	TableID          string
}

// ActivePaths returns the table-relative paths of active files, sorted.
func (s *snapshot) ActivePaths() []string {
	paths := make([]string, 0, len(s.Active))
	for p := range s.Active {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func commitName(tablePath string, version int64) string {
	return path.Join(tablePath, logDir, fmt.Sprintf("%020d.json", version))
}

// listVersions returns the committed versions at tablePath in ascending order.
func listVersions(ctx context.Context, conn storage.StorageConnection, tablePath string) ([]int64, error) {
	prefix := path.Join(tablePath, logDir) + "/"
	var versions []int64
	err := conn.ListObjects(ctx, "", prefix, func(name string) error {
		base := path.Base(name)
		if !strings.HasSuffix(base, ".json") {
			return nil
		}
		v, err := strconv.ParseInt(strings.TrimSuffix(base, ".json"), 10, 64)
		if err != nil {
			return nil
		}
		versions = append(versions, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

func readCommit(ctx context.Context, conn storage.StorageConnection, tablePath string, version int64) ([]action, error) {
	rc, err := conn.Download(ctx, "", commitName(tablePath, version))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var actions []action
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var a action
		if err := json.Unmarshal(text, &a); err != nil {
			return nil, fmt.Errorf("version %d line %d: %w", version, line, err)
		}
		actions = append(actions, a)
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("version %d: %w", version, err)
	}
	return actions, nil
}

// loadSnapshot replays the log. It returns ErrTableNotFound when no commit
// exists and a *StorageReadError when the log is present but unusable.
func loadSnapshot(ctx context.Context, conn storage.StorageConnection, tablePath string) (*snapshot, error) {
	versions, err := listVersions(ctx, conn, tablePath)
	if err != nil {
		return nil, &StorageReadError{Path: tablePath, Err: err}
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%s: %w", tablePath, ErrTableNotFound)
	}

	snap := &snapshot{Version: -1, Active: make(map[string]*addAction)}
	var haveMeta bool
	for i, v := range versions {
		if v != int64(i) {
			return nil, &StorageReadError{Path: tablePath, Err: fmt.Errorf("log gap: expected version %d, found %d", i, v)}
		}
		actions, err := readCommit(ctx, conn, tablePath, v)
		if err != nil {
			return nil, &StorageReadError{Path: tablePath, Err: err}
		}
		for _, a := range actions {
			switch {
			case a.MetaData != nil:
				fields, err := decodeSchema(a.MetaData.SchemaString)
				if err != nil {
					return nil, &StorageReadError{Path: tablePath, Err: fmt.Errorf("version %d: %w", v, err)}
				}
				snap.Fields = fields
				snap.PartitionColumns = a.MetaData.PartitionColumns
				snap.TableID = a.MetaData.ID
				haveMeta = true
			case a.Add != nil:
				snap.Active[a.Add.Path] = a.Add
			case a.Remove != nil:
				delete(snap.Active, a.Remove.Path)
			}
		}
		snap.Version = v
	}
	if !haveMeta {
		return nil, &StorageReadError{Path: tablePath, Err: fmt.Errorf("no metaData action in log")}
	}
	return snap, nil
}

func encodeCommit(actions []action) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, a := range actions {
		if err := enc.Encode(a); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

// compressionCodec maps a configured codec name to parquet-go.
func compressionCodec(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "snappy", "":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", name)
	}
}

func codecSuffix(name string) string {
	switch strings.ToLower(name) {
	case "snappy", "":
		return ".snappy"
	case "zstd":
		return ".zstd"
	case "gzip":
		return ".gz"
	default:
		return ""
	}
}

func leafNode(kind frame.Kind) parquet.Node {
	switch kind {
	case frame.KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case frame.KindInt:
		return parquet.Int(64)
	case frame.KindBool:
		return parquet.Leaf(parquet.BooleanType)
	case frame.KindTimestamp:
		return parquet.Timestamp(parquet.Millisecond)
	default:
		return parquet.String()
	}
}

// buildSchema returns a flat schema of optional columns and the leaf column
// index of every field. parquet-go orders group fields by name, so indexes
// are read back from the schema rather than assumed.
func buildSchema(fields []frame.Field) (*parquet.Schema, map[string]int) {
	group := make(parquet.Group, len(fields))
	for _, fd := range fields {
		group[fd.Name] = parquet.Optional(leafNode(fd.Kind))
	}
	schema := parquet.NewSchema("carbonlake", group)
	return schema, columnIndexes(schema)
}

func columnIndexes(schema *parquet.Schema) map[string]int {
	idx := make(map[string]int)
	for i, p := range schema.Columns() {
		if len(p) > 0 {
			idx[p[0]] = i
		}
	}
	return idx
}

func toValue(kind frame.Kind, v any) (parquet.Value, bool) {
	v = frame.Conform(kind, v)
	if v == nil {
		return parquet.NullValue(), false
	}
	switch kind {
	case frame.KindFloat:
		return parquet.DoubleValue(v.(float64)), true
	case frame.KindInt:
		return parquet.Int64Value(v.(int64)), true
	case frame.KindBool:
		return parquet.BooleanValue(v.(bool)), true
	case frame.KindTimestamp:
		return parquet.Int64Value(v.(time.Time).UnixMilli()), true
	default:
		return parquet.ByteArrayValue([]byte(v.(string))), true
	}
}

// encodeParquet writes rows restricted to fields into a single Parquet file.
func encodeParquet(fields []frame.Field, rows []frame.Row, codec compress.Codec) ([]byte, error) {
	if len(fields) == 0 {
		return nil, errors.New("no data columns to write")
	}
	schema, index := buildSchema(fields)

	buf := new(bytes.Buffer)
	w := parquet.NewWriter(buf, schema, parquet.Compression(codec))

	batch := make([]parquet.Row, 0, len(rows))
	for _, r := range rows {
		row := make(parquet.Row, len(fields))
		for _, fd := range fields {
			col := index[fd.Name]
			val, present := toValue(fd.Kind, r[fd.Name])
			def := 0
			if present {
				def = 1
			}
			row[col] = val.Level(0, def, col)
		}
		batch = append(batch, row)
	}
	if _, err := w.WriteRows(batch); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func fromValue(kind frame.Kind, v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch kind {
	case frame.KindFloat:
		return v.Double()
	case frame.KindInt:
		return v.Int64()
	case frame.KindBool:
		return v.Boolean()
	case frame.KindTimestamp:
		return time.UnixMilli(v.Int64()).UTC()
	default:
		return string(v.ByteArray())
	}
}

// decodeParquet reads every row of a Parquet file. Columns are typed by
// kinds; file columns unknown to kinds are ignored.
func decodeParquet(data []byte, kinds map[string]frame.Kind) ([]frame.Row, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	names := make(map[int]string)
	for name, i := range columnIndexes(f.Schema()) {
		if _, ok := kinds[name]; ok {
			names[i] = name
		}
	}

	var out []frame.Row
	buf := make([]parquet.Row, 256)
	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, pr := range buf[:n] {
				r := make(frame.Row, len(names))
				for _, v := range pr {
					name, ok := names[v.Column()]
					if !ok {
						continue
					}
					r[name] = fromValue(kinds[name], v)
				}
				out = append(out, r)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("read rows: %w", err)
			}
		}
		rows.Close()
	}
	return out, nil
}

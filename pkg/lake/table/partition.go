package table

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

const nullPartition = "__HIVE_DEFAULT_PARTITION__"

// partitionBucket holds the rows of one Hive partition.
type partitionBucket struct {
	dir    string             // "year=2024/month=1", empty when unpartitioned
	values map[string]*string // partitionValues recorded in the add action
	rows   []frame.Row
}

func partitionString(v any) *string {
	if v == nil {
		return nil
	}
	s := frame.ToString(v)
	return &s
}

// splitPartitions groups rows by the values of columns, keeping groups in
// sorted directory order so files are written deterministically.
func splitPartitions(f *frame.Frame, columns []string) []*partitionBucket {
	if len(columns) == 0 {
		return []*partitionBucket{{values: map[string]*string{}, rows: f.Rows}}
	}
	byDir := make(map[string]*partitionBucket)
	for _, r := range f.Rows {
		values := make(map[string]*string, len(columns))
		parts := make([]string, len(columns))
		for i, c := range columns {
			v := partitionString(r[c])
			values[c] = v
			seg := nullPartition
			if v != nil {
				seg = url.PathEscape(*v)
			}
			parts[i] = c + "=" + seg
		}
		dir := strings.Join(parts, "/")
		b, ok := byDir[dir]
		if !ok {
			b = &partitionBucket{dir: dir, values: values}
			byDir[dir] = b
		}
		b.rows = append(b.rows, r)
	}
	out := make([]*partitionBucket, 0, len(byDir))
	for _, b := range byDir {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].dir < out[j].dir })
	return out
}

func dataFileName(dir string, seq int, id, codec string) string {
	name := fmt.Sprintf("part-%05d-%s%s.parquet", seq, id, codecSuffix(codec))
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}

// partitionCell re-types a recorded partition value per the table schema.
func partitionCell(kind frame.Kind, v *string) any {
	if v == nil {
		return nil
	}
	return frame.Conform(kind, *v)
}

package frame

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Concat stacks frames vertically. The result schema is the union of the
// input schemas in first-seen order; a column present with two kinds is
// widened (int+float to float, anything else to string). Rows are copied.
func Concat(frames ...*Frame) *Frame {
	out := New()
	for _, f := range frames {
		if f == nil {
			continue
		}
		for _, fd := range f.fields {
			if cur, ok := out.Field(fd.Name); ok {
				out.SetField(Field{Name: fd.Name, Kind: unify(cur.Kind, fd.Kind)})
				continue
			}
			out.SetField(fd)
		}
	}
	for _, f := range frames {
		if f == nil {
			continue
		}
		for _, r := range f.Rows {
			row := make(Row, len(out.fields))
			for _, fd := range out.fields {
				row[fd.Name] = Conform(fd.Kind, r[fd.Name])
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Key encodes the values of keys in r into a comparable string. Timestamps
// are encoded by instant, so equal times in different zones collide.
func Key(r Row, keys []string) string {
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		switch v := r[k].(type) {
		case nil:
			b.WriteString("\x00null")
		case time.Time:
			b.WriteString("t:")
			b.WriteString(strconv.FormatInt(v.UnixNano(), 10))
		default:
			b.WriteString(ToString(v))
		}
	}
	return b.String()
}

// DropDuplicates keeps the first row for every distinct key and returns the
// filtered frame with the number of rows discarded. Row order is preserved.
func (f *Frame) DropDuplicates(keys []string) (*Frame, int) {
	out := New(f.fields...)
	seen := make(map[string]struct{}, len(f.Rows))
	dropped := 0
	for _, r := range f.Rows {
		k := Key(r, keys)
		if _, dup := seen[k]; dup {
			dropped++
			continue
		}
		seen[k] = struct{}{}
		out.Rows = append(out.Rows, r)
	}
	return out, dropped
}

// SortBy stably sorts rows by the given columns, ascending, nulls last.
func (f *Frame) SortBy(columns ...string) {
	sort.SliceStable(f.Rows, func(i, j int) bool {
		for _, c := range columns {
			if d := Compare(f.Rows[i][c], f.Rows[j][c]); d != 0 {
				return d < 0
			}
		}
		return false
	})
}

// Filter returns a frame with the rows for which keep returns true.
func (f *Frame) Filter(keep func(Row) bool) *Frame {
	out := New(f.fields...)
	for _, r := range f.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// GroupBy partitions rows by the values of keys. Groups are returned in
// order of first appearance.
func (f *Frame) GroupBy(keys ...string) []Group {
	idx := make(map[string]int)
	var groups []Group
	for _, r := range f.Rows {
		k := Key(r, keys)
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			vals := make(Row, len(keys))
			for _, kc := range keys {
				vals[kc] = r[kc]
			}
			groups = append(groups, Group{Key: vals})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}
	return groups
}

// Group is one GroupBy bucket.
type Group struct {
	Key  Row
	Rows []Row
}

// Floats returns the non-null float values of column in rows.
func Floats(rows []Row, column string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := ToFloat(r[column]); ok {
			out = append(out, v)
		}
	}
	return out
}

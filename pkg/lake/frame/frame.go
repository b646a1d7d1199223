// Package frame is the in-memory tabular model shared by the lake tables and
// the pipeline stages. A Frame is an ordered schema plus a slice of rows;
// a nil cell is a null.
package frame

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the logical type of a column.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
	KindBool
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFloat:
		return "float64"
	case KindInt:
		return "int64"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "float64", "double":
		return KindFloat, nil
	case "int64", "long":
		return KindInt, nil
	case "bool", "boolean":
		return KindBool, nil
	case "timestamp":
		return KindTimestamp, nil
	}
	return KindString, fmt.Errorf("frame: unknown column kind %q", s)
}

// Field is a named, typed column.
type Field struct {
	Name string
	Kind Kind
}

// Row maps column names to cell values. Missing keys read as null.
type Row map[string]any

// Frame is an ordered schema plus rows.
type Frame struct {
	fields []Field
	index  map[string]int
	Rows   []Row
}

// New returns an empty frame with the given schema.
func New(fields ...Field) *Frame {
	f := &Frame{index: make(map[string]int, len(fields))}
	for _, fd := range fields {
		f.SetField(fd)
	}
	return f
}

// FromRecords builds a frame from loosely typed records, inferring one kind
// per column. columns fixes the column order; names found only in records
// are appended in sorted order.
func FromRecords(columns []string, records []map[string]any) *Frame {
	order := append([]string(nil), columns...)
	seen := make(map[string]bool, len(order))
	for _, c := range order {
		seen[c] = true
	}
	var extra []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	f := New()
	for _, name := range order {
		kind := KindString
		set := false
		for _, rec := range records {
			k, ok := InferKind(rec[name])
			if !ok {
				continue
			}
			if !set {
				kind, set = k, true
				continue
			}
			kind = unify(kind, k)
		}
		f.SetField(Field{Name: name, Kind: kind})
	}
	for _, rec := range records {
		row := make(Row, len(order))
		for _, name := range order {
			fd, _ := f.Field(name)
			row[name] = Conform(fd.Kind, rec[name])
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

// Fields returns a copy of the schema.
func (f *Frame) Fields() []Field {
	return append([]Field(nil), f.fields...)
}

// Columns returns the column names in schema order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.fields))
	for i, fd := range f.fields {
		names[i] = fd.Name
	}
	return names
}

// Field looks up a column by name.
func (f *Frame) Field(name string) (Field, bool) {
	if i, ok := f.index[name]; ok {
		return f.fields[i], true
	}
	return Field{}, false
}

// Has reports whether the column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// SetField adds a column, or changes the kind of an existing one in place.
// Existing cells are not converted; use Cast for that.
func (f *Frame) SetField(fd Field) {
	if f.index == nil {
		f.index = make(map[string]int)
	}
	if i, ok := f.index[fd.Name]; ok {
		f.fields[i].Kind = fd.Kind
		return
	}
	f.index[fd.Name] = len(f.fields)
	f.fields = append(f.fields, fd)
}

// Drop removes columns from the schema and from every row.
func (f *Frame) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := f.fields[:0]
	for _, fd := range f.fields {
		if !drop[fd.Name] {
			kept = append(kept, fd)
		}
	}
	f.fields = kept
	f.reindex()
	for _, r := range f.Rows {
		for _, n := range names {
			delete(r, n)
		}
	}
}

// Rename renames columns; a rename onto an existing name replaces that column.
func (f *Frame) Rename(mapping map[string]string) {
	for from, to := range mapping {
		if from == to || !f.Has(from) {
			continue
		}
		if f.Has(to) {
			f.Drop(to)
		}
		f.fields[f.index[from]].Name = to
		f.reindex()
		for _, r := range f.Rows {
			if v, ok := r[from]; ok {
				r[to] = v
				delete(r, from)
			}
		}
	}
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.fields))
	for i, fd := range f.fields {
		f.index[fd.Name] = i
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Empty reports whether the frame is nil or has no rows.
func (f *Frame) Empty() bool { return f.Len() == 0 }

// Append adds a row, conforming each known cell to its column kind.
func (f *Frame) Append(row Row) {
	for name, v := range row {
		if fd, ok := f.Field(name); ok {
			row[name] = Conform(fd.Kind, v)
		}
	}
	f.Rows = append(f.Rows, row)
}

// Column returns the cells of one column.
func (f *Frame) Column(name string) []any {
	out := make([]any, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r[name]
	}
	return out
}

// Cast changes the kind of a column and converts every cell. Cells that
// cannot be converted become null.
func (f *Frame) Cast(name string, kind Kind) {
	if !f.Has(name) {
		return
	}
	f.SetField(Field{Name: name, Kind: kind})
	for _, r := range f.Rows {
		r[name] = Conform(kind, r[name])
	}
}

// Clone returns a deep copy of the frame's schema and rows.
func (f *Frame) Clone() *Frame {
	out := New(f.fields...)
	out.Rows = make([]Row, len(f.Rows))
	for i, r := range f.Rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// Head returns a frame sharing the first n rows.
func (f *Frame) Head(n int) *Frame {
	out := New(f.fields...)
	if n > len(f.Rows) {
		n = len(f.Rows)
	}
	out.Rows = f.Rows[:n]
	return out
}

// String renders the frame as a fixed-width text table, for logs.
func (f *Frame) String() string {
	cols := f.Columns()
	cells := make([][]string, len(f.Rows)+1)
	cells[0] = cols
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for ri, r := range f.Rows {
		line := make([]string, len(cols))
		for ci, c := range cols {
			line[ci] = FormatValue(r[c])
			if len(line[ci]) > widths[ci] {
				widths[ci] = len(line[ci])
			}
		}
		cells[ri+1] = line
	}
	var b strings.Builder
	for _, line := range cells {
		for ci, cell := range line {
			if ci > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[ci]-len(cell)))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatValue renders a single cell; nulls print as "null".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

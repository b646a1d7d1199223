package report

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/tigerroll/carbonlake/internal/stats"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

// Describer computes summary statistics of one numeric column of a table.
type Describer interface {
	Describe(ctx context.Context, tablePath, column string, f *frame.Frame) (stats.Summary, error)
	Name() string
}

// SketchDescriber summarizes the in-memory frame.
type SketchDescriber struct{}

func (SketchDescriber) Name() string { return "sketch" }

func (SketchDescriber) Describe(_ context.Context, _, column string, f *frame.Frame) (stats.Summary, error) {
	return stats.Describe(frame.Floats(f.Rows, column))
}

// FileLister lists the data files of a table's current snapshot.
type FileLister interface {
	ActiveFiles(ctx context.Context, tablePath string) ([]string, error)
}

// DuckDBDescriber runs the summary in DuckDB directly over the table's
// Parquet files. It only works when every file has a local path.
type DuckDBDescriber struct {
	files    FileLister
	conn     storage.StorageConnection
	fallback Describer
}

// NewDuckDBDescriber creates a DuckDBDescriber. Queries that cannot run in
// DuckDB are answered by the sketch summary instead.
func NewDuckDBDescriber(files FileLister, conn storage.StorageConnection) *DuckDBDescriber {
	return &DuckDBDescriber{files: files, conn: conn, fallback: SketchDescriber{}}
}

func (d *DuckDBDescriber) Name() string { return "duckdb" }

func (d *DuckDBDescriber) Describe(ctx context.Context, tablePath, column string, f *frame.Frame) (stats.Summary, error) {
	s, err := d.query(ctx, tablePath, column)
	if err != nil {
		logger.Warnf("DuckDB describe of '%s.%s' failed, using the sketch summary: %v", tablePath, column, err)
		return d.fallback.Describe(ctx, tablePath, column, f)
	}
	return s, nil
}

func (d *DuckDBDescriber) query(ctx context.Context, tablePath, column string) (stats.Summary, error) {
	var s stats.Summary
	objects, err := d.files.ActiveFiles(ctx, tablePath)
	if err != nil {
		return s, err
	}
	if len(objects) == 0 {
		return s, fmt.Errorf("table %s has no data files", tablePath)
	}
	quoted := make([]string, len(objects))
	for i, obj := range objects {
		p, ok := d.conn.LocalPath("", obj)
		if !ok {
			return s, fmt.Errorf("object %s has no local path", obj)
		}
		quoted[i] = "'" + strings.ReplaceAll(p, "'", "''") + "'"
	}
	col := `"` + strings.ReplaceAll(column, `"`, `""`) + `"`

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return s, err
	}
	defer db.Close()

	q := fmt.Sprintf(`SELECT count(%[1]s), avg(%[1]s), stddev_samp(%[1]s), min(%[1]s),
		quantile_cont(%[1]s, 0.25), quantile_cont(%[1]s, 0.5), quantile_cont(%[1]s, 0.75), max(%[1]s)
		FROM read_parquet([%[2]s])`, col, strings.Join(quoted, ", "))

	var count int64
	var mean, std, lo, p25, p50, p75, hi sql.NullFloat64
	if err := db.QueryRowContext(ctx, q).Scan(&count, &mean, &std, &lo, &p25, &p50, &p75, &hi); err != nil {
		return s, err
	}
	s.Count = int(count)
	s.Mean, s.Std, s.Min = orNaN(mean), orNaN(std), orNaN(lo)
	s.P25, s.P50, s.P75, s.Max = orNaN(p25), orNaN(p50), orNaN(p75), orNaN(hi)
	return s, nil
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// NewDescriber picks the describe backend for engine ("auto", "duckdb" or
// "sketch"). auto uses DuckDB when the lake is on local storage.
func NewDescriber(engine string, files FileLister, conn storage.StorageConnection) (Describer, error) {
	switch engine {
	case "sketch":
		return SketchDescriber{}, nil
	case "duckdb":
		return NewDuckDBDescriber(files, conn), nil
	case "", "auto":
		if conn != nil && conn.Type() == "local" {
			return NewDuckDBDescriber(files, conn), nil
		}
		return SketchDescriber{}, nil
	}
	return nil, fmt.Errorf("unknown describe engine %q", engine)
}

// formatSummary renders s like a one-column describe() table.
func formatSummary(column string, s stats.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %s\n", "", column)
	rows := []struct {
		label string
		value float64
	}{
		{"mean", s.Mean}, {"std", s.Std}, {"min", s.Min}, {"25%", s.P25},
		{"50%", s.P50}, {"75%", s.P75}, {"max", s.Max},
	}
	fmt.Fprintf(&b, "%-6s %d", "count", s.Count)
	for _, r := range rows {
		fmt.Fprintf(&b, "\n%-6s %.6f", r.label, r.value)
	}
	return b.String()
}

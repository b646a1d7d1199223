package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

// ClassifyFactor buckets an emission factor in gCO2/kWh. Bounds are inclusive.
func ClassifyFactor(v any) string {
	x, ok := frame.ToFloat(v)
	switch {
	case !ok:
		return LevelUnknown
	case x <= 150:
		return LevelLow
	case x <= 400:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// ResolveFactorColumn finds the single column named by one of aliases.
// Matching is exact after lowercasing and trimming both sides. Zero or
// several matches resolve to nothing.
func ResolveFactorColumn(columns, aliases []string) (string, bool) {
	accepted := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		accepted[strings.ToLower(strings.TrimSpace(a))] = true
	}
	var matches []string
	for _, c := range columns {
		if accepted[strings.ToLower(strings.TrimSpace(c))] {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], true
	case 0:
		logger.Debugf("ResolveFactorColumn: none of %v present in %v; factor classification skipped.", aliases, columns)
	default:
		logger.Warnf("ResolveFactorColumn: ambiguous factor columns %v; factor classification skipped.", matches)
	}
	return "", false
}

// Factors cleans the bronze factor snapshot. When the primary gCO2/kWh
// column resolves, it is coerced to float64, rows are sorted ascending by it
// and factor_level is added.
func Factors(bronze *frame.Frame, aliases []string, now time.Time) (*frame.Frame, error) {
	f := bronze.Clone()

	renames := make(map[string]string)
	owners := make(map[string]string)
	for _, col := range f.Columns() {
		name := strings.ToLower(strings.TrimSpace(col))
		if prev, dup := owners[name]; dup {
			return nil, fmt.Errorf("transform factors: columns %q and %q collide as %q", prev, col, name)
		}
		owners[name] = col
		if name != col {
			renames[col] = name
		}
	}
	f.Rename(renames)

	if primary, ok := ResolveFactorColumn(f.Columns(), aliases); ok {
		f.Cast(primary, frame.KindFloat)
		f.SortBy(primary)
		f.SetField(frame.Field{Name: "factor_level", Kind: frame.KindString})
		for _, r := range f.Rows {
			r["factor_level"] = ClassifyFactor(r[primary])
		}
	}

	f.SetField(frame.Field{Name: "processed_ts", Kind: frame.KindTimestamp})
	ts := now.UTC()
	for _, r := range f.Rows {
		r["processed_ts"] = ts
	}
	return f, nil
}

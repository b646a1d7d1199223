package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

// DatePartLayout formats the day partition of bronze intensity.
const DatePartLayout = "2006-01-02"

var intensityMeasures = []string{"intensity_forecast", "intensity_actual"}

// NormalizeIntensity types the raw intervals for the bronze table: from/to
// become timestamps, the forecast and actual measures become float64 (values
// that do not parse become null), and date_part and ingestion_ts are added.
// Every other source column is kept verbatim.
func NormalizeIntensity(raw *frame.Frame, now time.Time) *frame.Frame {
	f := raw.Clone()
	for _, col := range []string{"from", "to"} {
		if f.Has(col) {
			f.Cast(col, frame.KindTimestamp)
		} else {
			f.SetField(frame.Field{Name: col, Kind: frame.KindTimestamp})
		}
	}
	for _, col := range intensityMeasures {
		if f.Has(col) {
			f.Cast(col, frame.KindFloat)
		} else {
			f.SetField(frame.Field{Name: col, Kind: frame.KindFloat})
		}
	}

	f.SetField(frame.Field{Name: "date_part", Kind: frame.KindString})
	f.SetField(frame.Field{Name: "ingestion_ts", Kind: frame.KindTimestamp})
	ts := now.UTC()
	for _, r := range f.Rows {
		if from, ok := r["from"].(time.Time); ok {
			r["date_part"] = from.UTC().Format(DatePartLayout)
		} else {
			r["date_part"] = nil
		}
		r["ingestion_ts"] = ts
	}
	return f
}

// NormalizeFactors lowercases and trims the catalog's column names and
// coerces the gCO2 columns to float64: every column whose name contains
// "gco2" and every column the source sent as a number.
func NormalizeFactors(raw *frame.Frame, now time.Time) (*frame.Frame, error) {
	f := raw.Clone()

	renames := make(map[string]string)
	targets := make(map[string]string)
	for _, col := range f.Columns() {
		name := strings.ToLower(strings.TrimSpace(col))
		if prev, dup := targets[name]; dup {
			return nil, fmt.Errorf("factor columns %q and %q both normalize to %q", prev, col, name)
		}
		targets[name] = col
		if name != col {
			renames[col] = name
		}
	}
	if len(renames) > 0 {
		f.Rename(renames)
	}

	for _, fd := range f.Fields() {
		numeric := fd.Kind == frame.KindFloat || fd.Kind == frame.KindInt
		if numeric || strings.Contains(fd.Name, "gco2") {
			f.Cast(fd.Name, frame.KindFloat)
		}
	}

	f.SetField(frame.Field{Name: "ingestion_ts", Kind: frame.KindTimestamp})
	ts := now.UTC()
	for _, r := range f.Rows {
		r["ingestion_ts"] = ts
	}
	return f, nil
}

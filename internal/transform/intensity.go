// Package transform derives the silver tables from bronze.
package transform

import (
	"time"

	"github.com/tigerroll/carbonlake/internal/stats"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

// DateLayout formats the silver date column.
const DateLayout = "2006-01-02"

// Category labels shared by the intensity and factor classifications.
const (
	LevelLow      = "low"
	LevelModerate = "moderate"
	LevelMedium   = "medium"
	LevelHigh     = "high"
	LevelVeryHigh = "very high"
	LevelUnknown  = "unknown"
)

// ClassifyIntensity buckets a gCO2/kWh interval value. Bounds are inclusive.
func ClassifyIntensity(v any) string {
	x, ok := frame.ToFloat(v)
	switch {
	case !ok:
		return LevelUnknown
	case x <= 100:
		return LevelLow
	case x <= 200:
		return LevelModerate
	case x <= 300:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}

var detailFields = []frame.Field{
	{Name: "date", Kind: frame.KindString},
	{Name: "year", Kind: frame.KindInt},
	{Name: "month", Kind: frame.KindInt},
	{Name: "day", Kind: frame.KindInt},
	{Name: "hour", Kind: frame.KindInt},
	{Name: "weekday", Kind: frame.KindString},
	{Name: "intensity_value", Kind: frame.KindFloat},
	{Name: "intensity_level", Kind: frame.KindString},
	{Name: "processed_ts", Kind: frame.KindTimestamp},
}

// IntensityDetail enriches bronze intervals with calendar fields, the
// effective intensity (actual, falling back to forecast) and its level.
// Rows repeating an earlier (from, to) pair are dropped.
func IntensityDetail(bronze *frame.Frame, now time.Time) *frame.Frame {
	f := bronze.Clone()
	for _, col := range []string{"from", "to"} {
		if !f.Has(col) {
			f.SetField(frame.Field{Name: col, Kind: frame.KindTimestamp})
		}
		f.Cast(col, frame.KindTimestamp)
	}
	for _, col := range []string{"intensity_forecast", "intensity_actual"} {
		if !f.Has(col) {
			f.SetField(frame.Field{Name: col, Kind: frame.KindFloat})
		}
		f.Cast(col, frame.KindFloat)
	}

	f, dropped := f.DropDuplicates([]string{"from", "to"})
	if dropped > 0 {
		logger.Warnf("IntensityDetail: dropped %d duplicate intervals.", dropped)
	}

	for _, fd := range detailFields {
		f.SetField(fd)
	}
	ts := now.UTC()
	for _, r := range f.Rows {
		if from, ok := r["from"].(time.Time); ok {
			from = from.UTC()
			r["date"] = from.Format(DateLayout)
			r["year"] = int64(from.Year())
			r["month"] = int64(from.Month())
			r["day"] = int64(from.Day())
			r["hour"] = int64(from.Hour())
			r["weekday"] = from.Weekday().String()
		} else {
			for _, col := range []string{"date", "year", "month", "day", "hour", "weekday"} {
				r[col] = nil
			}
		}

		value := r["intensity_actual"]
		if value == nil {
			value = r["intensity_forecast"]
		}
		r["intensity_value"] = value
		r["intensity_level"] = ClassifyIntensity(value)
		r["processed_ts"] = ts
	}
	return f
}

var dailyFields = []frame.Field{
	{Name: "date", Kind: frame.KindString},
	{Name: "intensity_mean", Kind: frame.KindFloat},
	{Name: "intensity_max", Kind: frame.KindFloat},
	{Name: "interval_count", Kind: frame.KindInt},
	{Name: "intensity_p50", Kind: frame.KindFloat},
	{Name: "intensity_p95", Kind: frame.KindFloat},
	{Name: "year", Kind: frame.KindInt},
	{Name: "month", Kind: frame.KindInt},
	{Name: "processed_ts", Kind: frame.KindTimestamp},
}

// IntensityDaily aggregates detail rows per date. Rows without a date are
// ignored; a date whose values are all null gets null statistics and a
// zero count.
func IntensityDaily(detail *frame.Frame, now time.Time) *frame.Frame {
	out := frame.New(dailyFields...)
	dated := detail.Filter(func(r frame.Row) bool { return r["date"] != nil })
	ts := now.UTC()

	for _, g := range dated.GroupBy("date") {
		date := frame.ToString(g.Key["date"])
		values := frame.Floats(g.Rows, "intensity_value")
		row := frame.Row{
			"date":           date,
			"interval_count": int64(len(values)),
			"processed_ts":   ts,
		}
		if len(values) > 0 {
			sum, hi := 0.0, values[0]
			for _, v := range values {
				sum += v
				if v > hi {
					hi = v
				}
			}
			row["intensity_mean"] = sum / float64(len(values))
			row["intensity_max"] = hi
			if qs, err := stats.Quantiles(values, 0.5, 0.95); err == nil {
				row["intensity_p50"] = qs[0]
				row["intensity_p95"] = qs[1]
			} else {
				logger.Warnf("IntensityDaily: quantiles for %s unavailable: %v", date, err)
			}
		}
		if d, err := time.Parse(DateLayout, date); err == nil {
			row["year"] = int64(d.Year())
			row["month"] = int64(d.Month())
		}
		out.Append(row)
	}
	out.SortBy("date")
	return out
}

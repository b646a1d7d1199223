package report

import (
	"sort"
	"time"

	"github.com/tigerroll/carbonlake/internal/transform"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

// factorMetaColumns are never plotted as fuels.
var factorMetaColumns = map[string]bool{
	"ingestion_ts": true,
	"processed_ts": true,
	"factor_level": true,
}

type dailyPoint struct {
	Date time.Time
	Mean float64
}

// dailyMeans returns the non-null daily means ordered by date.
func dailyMeans(daily *frame.Frame) []dailyPoint {
	var out []dailyPoint
	for _, r := range daily.Rows {
		d, err := time.Parse(transform.DateLayout, frame.ToString(r["date"]))
		if r["date"] == nil || err != nil {
			continue
		}
		mean, ok := frame.ToFloat(r["intensity_mean"])
		if !ok {
			continue
		}
		out = append(out, dailyPoint{Date: d, Mean: mean})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

type labelCount struct {
	Label string
	Count int
}

// levelCounts counts detail rows per intensity_level, ordered by level
// name. Null levels are not counted.
func levelCounts(detail *frame.Frame) []labelCount {
	counts := make(map[string]int)
	for _, r := range detail.Rows {
		if r["intensity_level"] == nil {
			continue
		}
		counts[frame.ToString(r["intensity_level"])]++
	}
	out := make([]labelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, labelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

type fuelValue struct {
	Fuel  string
	Value float64
}

// fuelFactors transposes the factor snapshot into one value per fuel
// column, ordered ascending. Only the first row is used since the table
// holds a single catalog snapshot; non-numeric cells are left out.
func fuelFactors(factors *frame.Frame) []fuelValue {
	if factors.Empty() {
		return nil
	}
	row := factors.Rows[0]
	var out []fuelValue
	for _, col := range factors.Columns() {
		if factorMetaColumns[col] {
			continue
		}
		v, ok := numericCell(row[col])
		if !ok {
			continue
		}
		out = append(out, fuelValue{Fuel: col, Value: v})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// numericCell accepts numbers and numeric strings, like a coercing to_numeric.
func numericCell(v any) (float64, bool) {
	switch v.(type) {
	case bool, time.Time:
		return 0, false
	}
	return frame.ToFloat(v)
}

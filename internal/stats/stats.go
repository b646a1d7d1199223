// Package stats computes descriptive statistics for numeric columns.
// Quantiles come from a DDSketch, so they carry a bounded relative error.
package stats

import (
	"fmt"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

// RelativeAccuracy is the DDSketch accuracy used for every quantile.
const RelativeAccuracy = 0.01

// Summary mirrors a describe() over one column. Std is the sample standard
// deviation and is NaN for fewer than two values.
type Summary struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	P25   float64
	P50   float64
	P75   float64
	Max   float64
}

// Describe summarizes values. An empty input returns a zero Summary with NaN statistics.
func Describe(values []float64) (Summary, error) {
	s := Summary{Count: len(values)}
	if len(values) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.P25, s.P50, s.P75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s, nil
	}

	sum, lo, hi := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	s.Mean = sum / float64(len(values))
	s.Min, s.Max = lo, hi
	s.Std = math.NaN()
	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := v - s.Mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq / float64(len(values)-1))
	}

	qs, err := Quantiles(values, 0.25, 0.50, 0.75)
	if err != nil {
		return s, err
	}
	s.P25, s.P50, s.P75 = qs[0], qs[1], qs[2]
	return s, nil
}

// Quantiles returns the requested quantiles of values, each within
// RelativeAccuracy of the exact value. Results are clamped to [min, max].
func Quantiles(values []float64, qs ...float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("stats: quantiles of an empty set")
	}
	sketch, err := ddsketch.NewDefaultDDSketch(RelativeAccuracy)
	if err != nil {
		return nil, err
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if err := sketch.Add(v); err != nil {
			return nil, fmt.Errorf("stats: add %v: %w", v, err)
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := make([]float64, len(qs))
	for i, q := range qs {
		v, err := sketch.GetValueAtQuantile(q)
		if err != nil {
			return nil, fmt.Errorf("stats: quantile %v: %w", q, err)
		}
		out[i] = math.Max(lo, math.Min(hi, v))
	}
	return out, nil
}

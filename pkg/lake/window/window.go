// Package window resolves the time range an incremental extraction should
// request from an append-only source.
package window

import (
	"time"

	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

const (
	DefaultLookback = 7 * 24 * time.Hour
	DefaultStep     = 30 * time.Minute
)

// Window is a closed time range [Start, End] in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Resolver computes extraction windows.
type Resolver struct {
	// Lookback bounds the first extraction when nothing has been stored yet.
	Lookback time.Duration
	// Step is added to the stored maximum so the last stored interval is not requested again.
	Step time.Duration
}

// NewResolver returns a Resolver, substituting the defaults for non-positive values.
func NewResolver(lookback, step time.Duration) Resolver {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if step <= 0 {
		step = DefaultStep
	}
	return Resolver{Lookback: lookback, Step: step}
}

// Compute returns the window to fetch. With no stored maximum the window is
// [now-Lookback, now]; otherwise it is [maxFrom+Step, now]. The boolean is
// false when the start is not strictly before now, which happens when the
// table is up to date or its maximum lies in the future.
func (r Resolver) Compute(existingMaxFrom *time.Time, now time.Time) (Window, bool) {
	now = now.UTC()
	var start time.Time
	if existingMaxFrom == nil {
		start = now.Add(-r.Lookback)
	} else {
		start = existingMaxFrom.UTC().Add(r.Step)
	}
	if !start.Before(now) {
		return Window{}, false
	}
	return Window{Start: start, End: now}, true
}

// MaxTimestamp returns the latest non-null timestamp of column, or nil for
// an empty frame, a missing column or an all-null column. String cells are
// parsed; unparseable ones are skipped.
func MaxTimestamp(f *frame.Frame, column string) *time.Time {
	if f.Empty() || !f.Has(column) {
		return nil
	}
	var latest *time.Time
	for _, r := range f.Rows {
		t, ok := frame.ToTime(r[column])
		if !ok {
			continue
		}
		if latest == nil || t.After(*latest) {
			tt := t
			latest = &tt
		}
	}
	return latest
}

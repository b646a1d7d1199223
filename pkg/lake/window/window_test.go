package window_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/carbonlake/pkg/lake/frame"
	"github.com/tigerroll/carbonlake/pkg/lake/window"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestCompute_BootstrapUsesLookback(t *testing.T) {
	r := window.NewResolver(0, 0)
	w, ok := r.Compute(nil, now)
	require.True(t, ok)
	assert.Equal(t, now.Add(-7*24*time.Hour), w.Start)
	assert.Equal(t, now, w.End)
	assert.Equal(t, 7*24*time.Hour, w.Duration())
}

func TestCompute_IncrementalStartsOneStepAfterMax(t *testing.T) {
	r := window.NewResolver(window.DefaultLookback, window.DefaultStep)
	stored := now.Add(-2 * time.Hour)
	w, ok := r.Compute(&stored, now)
	require.True(t, ok)
	assert.Equal(t, stored.Add(30*time.Minute), w.Start)
	assert.Equal(t, now, w.End)
}

func TestCompute_NoWindow(t *testing.T) {
	r := window.NewResolver(0, 0)
	cases := map[string]time.Time{
		"up to date":  now.Add(-30 * time.Minute),
		"future max":  now.Add(6 * time.Hour),
		"just stored": now.Add(-10 * time.Minute),
	}
	for name, stored := range cases {
		stored := stored
		t.Run(name, func(t *testing.T) {
			w, ok := r.Compute(&stored, now)
			assert.False(t, ok)
			assert.Equal(t, window.Window{}, w)
		})
	}
}

func TestCompute_StartIsMonotonicInStoredMax(t *testing.T) {
	r := window.NewResolver(0, 0)
	var prev time.Time
	for i := 48; i > 1; i-- {
		stored := now.Add(-time.Duration(i) * 30 * time.Minute)
		w, ok := r.Compute(&stored, now)
		require.True(t, ok)
		assert.True(t, w.Start.After(prev))
		assert.True(t, w.Start.After(stored))
		prev = w.Start
	}
}

func TestMaxTimestamp(t *testing.T) {
	assert.Nil(t, window.MaxTimestamp(nil, "from"))

	f := frame.New(frame.Field{Name: "from", Kind: frame.KindTimestamp})
	assert.Nil(t, window.MaxTimestamp(f, "from"))
	assert.Nil(t, window.MaxTimestamp(f, "missing"))

	f.Append(frame.Row{"from": nil})
	assert.Nil(t, window.MaxTimestamp(f, "from"), "all-null column")

	f.Append(frame.Row{"from": now.Add(-time.Hour)})
	f.Append(frame.Row{"from": now})
	f.Append(frame.Row{"from": now.Add(-2 * time.Hour)})
	got := window.MaxTimestamp(f, "from")
	require.NotNil(t, got)
	assert.Equal(t, now, *got)
}

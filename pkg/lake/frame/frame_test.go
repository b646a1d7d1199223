package frame_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

func ts(s string) time.Time {
	t, err := frame.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFromRecords_InfersKinds(t *testing.T) {
	f := frame.FromRecords([]string{"from", "intensity_actual"}, []map[string]any{
		{"from": "2024-01-01T00:00Z", "intensity_actual": 120.0, "intensity_index": "moderate"},
		{"from": "2024-01-01T00:30Z", "intensity_actual": nil, "intensity_index": "low", "count": 3},
	})

	assert.Equal(t, []string{"from", "intensity_actual", "count", "intensity_index"}, f.Columns())
	fd, ok := f.Field("intensity_actual")
	require.True(t, ok)
	assert.Equal(t, frame.KindFloat, fd.Kind)
	fd, _ = f.Field("count")
	assert.Equal(t, frame.KindInt, fd.Kind)
	assert.Equal(t, int64(3), f.Rows[1]["count"])
	assert.Nil(t, f.Rows[0]["count"])
	assert.Nil(t, f.Rows[1]["intensity_actual"])
}

func TestFromRecords_MixedKindsWiden(t *testing.T) {
	f := frame.FromRecords(nil, []map[string]any{{"v": 1}, {"v": 2.5}, {"w": true}, {"w": "x"}})
	v, _ := f.Field("v")
	w, _ := f.Field("w")
	assert.Equal(t, frame.KindFloat, v.Kind)
	assert.Equal(t, frame.KindString, w.Kind)
	assert.Equal(t, 1.0, f.Rows[0]["v"])
	assert.Equal(t, "true", f.Rows[2]["w"])
}

func TestParseTimestamp(t *testing.T) {
	for _, in := range []string{"2018-01-20T12:00Z", "2018-01-20T12:00:00Z", "2018-01-20T13:00+01:00", "2018-01-20T12:00:00"} {
		got, err := frame.ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.Equal(t, time.Date(2018, 1, 20, 12, 0, 0, 0, time.UTC), got, in)
	}
	_, err := frame.ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestConform(t *testing.T) {
	assert.Equal(t, 12.5, frame.Conform(frame.KindFloat, "12.5"))
	assert.Nil(t, frame.Conform(frame.KindFloat, "n/a"))
	assert.Equal(t, int64(7), frame.Conform(frame.KindInt, 7.0))
	assert.Nil(t, frame.Conform(frame.KindInt, 7.5))
	assert.Equal(t, true, frame.Conform(frame.KindBool, "true"))
	assert.Equal(t, ts("2024-03-01T10:00Z"), frame.Conform(frame.KindTimestamp, "2024-03-01T10:00Z"))
	assert.Equal(t, "42", frame.Conform(frame.KindString, int64(42)))
}

func TestConcatAndDropDuplicates_FirstWins(t *testing.T) {
	existing := frame.New(
		frame.Field{Name: "from", Kind: frame.KindTimestamp},
		frame.Field{Name: "value", Kind: frame.KindFloat},
	)
	existing.Append(frame.Row{"from": ts("2024-01-01T00:00Z"), "value": 1.0})
	existing.Append(frame.Row{"from": ts("2024-01-01T00:30Z"), "value": 2.0})

	incoming := frame.New(
		frame.Field{Name: "from", Kind: frame.KindTimestamp},
		frame.Field{Name: "value", Kind: frame.KindInt},
		frame.Field{Name: "extra", Kind: frame.KindString},
	)
	incoming.Append(frame.Row{"from": ts("2024-01-01T00:30Z"), "value": int64(99), "extra": "x"})
	incoming.Append(frame.Row{"from": ts("2024-01-01T01:00Z"), "value": int64(3), "extra": "y"})

	combined := frame.Concat(existing, incoming)
	assert.Equal(t, []string{"from", "value", "extra"}, combined.Columns())
	assert.Equal(t, 4, combined.Len())

	deduped, dropped := combined.DropDuplicates([]string{"from"})
	assert.Equal(t, 1, dropped)
	require.Equal(t, 3, deduped.Len())
	assert.Equal(t, 2.0, deduped.Rows[1]["value"], "existing row wins")
	assert.Nil(t, deduped.Rows[1]["extra"])
	assert.Equal(t, 3.0, deduped.Rows[2]["value"])
}

func TestKey_TimestampsCompareByInstant(t *testing.T) {
	a := frame.Row{"from": time.Date(2024, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600))}
	b := frame.Row{"from": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, frame.Key(a, []string{"from"}), frame.Key(b, []string{"from"}))
}

func TestSortByNullsLast(t *testing.T) {
	f := frame.New(frame.Field{Name: "v", Kind: frame.KindFloat})
	for _, v := range []any{3.0, nil, 1.0, 2.0} {
		f.Append(frame.Row{"v": v})
	}
	f.SortBy("v")
	assert.Equal(t, []any{1.0, 2.0, 3.0, nil}, f.Column("v"))
}

func TestGroupByKeepsFirstAppearanceOrder(t *testing.T) {
	f := frame.New(frame.Field{Name: "date", Kind: frame.KindString}, frame.Field{Name: "v", Kind: frame.KindFloat})
	f.Append(frame.Row{"date": "2024-01-02", "v": 1.0})
	f.Append(frame.Row{"date": "2024-01-01", "v": 2.0})
	f.Append(frame.Row{"date": "2024-01-02", "v": nil})

	groups := f.GroupBy("date")
	require.Len(t, groups, 2)
	assert.Equal(t, "2024-01-02", groups[0].Key["date"])
	assert.Len(t, groups[0].Rows, 2)
	assert.Equal(t, []float64{1.0}, frame.Floats(groups[0].Rows, "v"))
}

func TestRenameDropCast(t *testing.T) {
	f := frame.FromRecords([]string{"Coal ", "gas"}, []map[string]any{{"Coal ": "937", "gas": 394.0}})
	f.Rename(map[string]string{"Coal ": "coal"})
	f.Cast("coal", frame.KindFloat)
	f.Drop("gas")

	assert.Equal(t, []string{"coal"}, f.Columns())
	assert.Equal(t, 937.0, f.Rows[0]["coal"])
	_, present := f.Rows[0]["gas"]
	assert.False(t, present)
}

package transform_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/carbonlake/internal/layout"
	"github.com/tigerroll/carbonlake/internal/transform"
	storageConfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
	"github.com/tigerroll/carbonlake/pkg/lake/table"
)

var now = time.Date(2024, 3, 11, 6, 0, 0, 0, time.UTC)

func TestClassifyIntensity(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "unknown"},
		{"n/a", "unknown"},
		{42.0, "low"},
		{100.0, "low"},
		{100.5, "moderate"},
		{200.0, "moderate"},
		{300.0, "high"},
		{301.0, "very high"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, transform.ClassifyIntensity(tc.in), "value %v", tc.in)
	}
}

func TestClassifyFactor(t *testing.T) {
	assert.Equal(t, "unknown", transform.ClassifyFactor(nil))
	assert.Equal(t, "low", transform.ClassifyFactor(150.0))
	assert.Equal(t, "medium", transform.ClassifyFactor(150.1))
	assert.Equal(t, "medium", transform.ClassifyFactor(400.0))
	assert.Equal(t, "high", transform.ClassifyFactor(937.0))
}

func bronzeIntensity(rows ...frame.Row) *frame.Frame {
	f := frame.New(
		frame.Field{Name: "from", Kind: frame.KindTimestamp},
		frame.Field{Name: "to", Kind: frame.KindTimestamp},
		frame.Field{Name: "intensity_forecast", Kind: frame.KindFloat},
		frame.Field{Name: "intensity_actual", Kind: frame.KindFloat},
		frame.Field{Name: "intensity_index", Kind: frame.KindString},
		frame.Field{Name: "date_part", Kind: frame.KindString},
	)
	for _, r := range rows {
		f.Append(r)
	}
	return f
}

func interval(from string, forecast, actual any) frame.Row {
	start, _ := frame.ParseTimestamp(from)
	return frame.Row{
		"from":               start,
		"to":                 start.Add(30 * time.Minute),
		"intensity_forecast": forecast,
		"intensity_actual":   actual,
		"intensity_index":    "moderate",
		"date_part":          start.Format("2006-01-02"),
	}
}

func TestIntensityDetail(t *testing.T) {
	bronze := bronzeIntensity(
		interval("2024-03-10T13:00Z", 110.0, 95.0),
		interval("2024-03-10T13:30Z", 210.0, nil),
		interval("2024-03-10T13:30Z", 999.0, 999.0),
		interval("2024-03-10T14:00Z", nil, nil),
	)

	detail := transform.IntensityDetail(bronze, now)
	require.Equal(t, 3, detail.Len())

	first := detail.Rows[0]
	assert.Equal(t, "2024-03-10", first["date"])
	assert.Equal(t, int64(2024), first["year"])
	assert.Equal(t, int64(3), first["month"])
	assert.Equal(t, int64(10), first["day"])
	assert.Equal(t, int64(13), first["hour"])
	assert.Equal(t, "Sunday", first["weekday"])
	assert.Equal(t, 95.0, first["intensity_value"])
	assert.Equal(t, "low", first["intensity_level"])
	assert.Equal(t, now, first["processed_ts"])

	assert.Equal(t, 210.0, detail.Rows[1]["intensity_value"], "forecast fills a missing actual")
	assert.Equal(t, "high", detail.Rows[1]["intensity_level"])
	assert.Nil(t, detail.Rows[2]["intensity_value"])
	assert.Equal(t, "unknown", detail.Rows[2]["intensity_level"])

	assert.Equal(t, 4, bronze.Len(), "input is not modified")
	assert.False(t, bronze.Has("intensity_value"))
}

func TestIntensityDaily(t *testing.T) {
	bronze := bronzeIntensity(
		interval("2024-03-10T01:00Z", nil, 200.0),
		interval("2024-03-09T23:30Z", nil, nil),
		interval("2024-03-10T00:00Z", nil, 100.0),
	)
	daily := transform.IntensityDaily(transform.IntensityDetail(bronze, now), now)
	require.Equal(t, 2, daily.Len())

	empty := daily.Rows[0]
	assert.Equal(t, "2024-03-09", empty["date"])
	assert.Equal(t, int64(0), empty["interval_count"])
	assert.Nil(t, empty["intensity_mean"])

	day := daily.Rows[1]
	assert.Equal(t, "2024-03-10", day["date"])
	assert.Equal(t, 150.0, day["intensity_mean"])
	assert.Equal(t, 200.0, day["intensity_max"])
	assert.Equal(t, int64(2), day["interval_count"])
	assert.Equal(t, int64(2024), day["year"])
	assert.Equal(t, int64(3), day["month"])

	p50, ok := day["intensity_p50"].(float64)
	require.True(t, ok)
	p95, ok := day["intensity_p95"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, p50, 99.0)
	assert.LessOrEqual(t, p95, 200.0)
	assert.LessOrEqual(t, p50, p95)
}

func TestFactors_ClassifiesAndSortsPrimaryColumn(t *testing.T) {
	bronze := frame.FromRecords([]string{"Fuel", "gCO2perkWh "}, []map[string]any{
		{"Fuel": "coal", "gCO2perkWh ": 937.0},
		{"Fuel": "wind", "gCO2perkWh ": "0"},
		{"Fuel": "gas", "gCO2perkWh ": 394.0},
		{"Fuel": "unknown", "gCO2perkWh ": nil},
	})

	out, err := transform.Factors(bronze, config.DefaultFactorAliases(), now)
	require.NoError(t, err)
	require.True(t, out.Has("factor_level"))

	var fuels, levels []any
	for _, r := range out.Rows {
		fuels = append(fuels, r["fuel"])
		levels = append(levels, r["factor_level"])
	}
	assert.Equal(t, []any{"wind", "gas", "coal", "unknown"}, fuels)
	assert.Equal(t, []any{"low", "medium", "high", "unknown"}, levels)
	assert.Equal(t, now, out.Rows[0]["processed_ts"])
}

func TestFactors_WithoutPrimaryColumnSkipsClassification(t *testing.T) {
	bronze := frame.FromRecords(nil, []map[string]any{{"Biomass": 120.0, "Coal": 937.0}})

	out, err := transform.Factors(bronze, config.DefaultFactorAliases(), now)
	require.NoError(t, err)
	assert.False(t, out.Has("factor_level"))
	assert.True(t, out.Has("processed_ts"))
	assert.Equal(t, 937.0, out.Rows[0]["coal"])
}

func TestResolveFactorColumn(t *testing.T) {
	aliases := config.DefaultFactorAliases()

	col, ok := transform.ResolveFactorColumn([]string{"fuel", "gco2_per_kwh"}, aliases)
	assert.True(t, ok)
	assert.Equal(t, "gco2_per_kwh", col)

	_, ok = transform.ResolveFactorColumn([]string{"fuel", "gco2_per_kwh", "gco2perkwh"}, aliases)
	assert.False(t, ok, "ambiguous")

	_, ok = transform.ResolveFactorColumn([]string{"fuel", "gco2_per_kwh_estimate"}, aliases)
	assert.False(t, ok, "substring matches do not count")
}

func newStore(t *testing.T) *table.Store {
	t.Helper()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "lake")
	require.NoError(t, err)
	store, err := table.NewStore(conn, "snappy")
	require.NoError(t, err)
	return store
}

func TestStage_RunIntensity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tables := layout.New("api_carbon_intensity")
	_, err := store.Overwrite(ctx, tables.BronzeIntensity, bronzeIntensity(
		interval("2024-02-29T23:30Z", 120.0, 130.0),
		interval("2024-03-01T00:00Z", 100.0, 90.0),
	), layout.BronzeIntensityPartitions)
	require.NoError(t, err)

	stage := transform.NewStage(store, tables, config.DefaultFactorAliases(), nil, transform.WithClock(func() time.Time { return now }))
	outcome, err := stage.RunIntensity(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, outcome.ExitStatus)
	assert.Equal(t, 2, outcome.ReadCount)
	assert.Equal(t, 4, outcome.WriteCount)

	files, err := store.ActiveFiles(ctx, tables.SilverIntensity)
	require.NoError(t, err)
	assert.Len(t, files, 2, "one file per (year, month)")

	daily, err := store.ReadAll(ctx, tables.SilverIntensityDaily)
	require.NoError(t, err)
	daily.SortBy("date")
	require.Equal(t, 2, daily.Len())
	assert.Equal(t, "2024-02-29", daily.Rows[0]["date"])
	assert.Equal(t, 130.0, daily.Rows[0]["intensity_mean"])
	assert.Equal(t, int64(2), daily.Rows[0]["month"])
}

func TestStage_MissingBronzeIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tables := layout.New("api_carbon_intensity")
	stage := transform.NewStage(store, tables, nil, nil)

	outcome, err := stage.RunIntensity(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, outcome.ExitStatus)

	outcome, err = stage.RunFactors(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, outcome.ExitStatus)
	assert.False(t, store.Exists(ctx, tables.SilverFactors))
}

func TestStage_RunFactors(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tables := layout.New("api_carbon_intensity")
	_, err := store.Overwrite(ctx, tables.BronzeFactors, frame.FromRecords(nil, []map[string]any{
		{"biomass": 120.0, "coal": 937.0, "ingestion_ts": now},
	}), nil)
	require.NoError(t, err)

	stage := transform.NewStage(store, tables, config.DefaultFactorAliases(), nil, transform.WithClock(func() time.Time { return now }))
	outcome, err := stage.RunFactors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.WriteCount)

	silver, err := store.ReadAll(ctx, tables.SilverFactors)
	require.NoError(t, err)
	assert.Equal(t, 120.0, silver.Rows[0]["biomass"])
	assert.True(t, silver.Has("processed_ts"))
}

package report

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/carbonlake/internal/layout"
	"github.com/tigerroll/carbonlake/internal/stats"
	"github.com/tigerroll/carbonlake/internal/transform"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/local"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
	"github.com/tigerroll/carbonlake/pkg/lake/table"
)

var (
	now    = time.Date(2024, 3, 11, 6, 0, 0, 0, time.UTC)
	tables = layout.New("api_carbon_intensity")
)

func bronze() *frame.Frame {
	f := frame.New(
		frame.Field{Name: "from", Kind: frame.KindTimestamp},
		frame.Field{Name: "to", Kind: frame.KindTimestamp},
		frame.Field{Name: "intensity_forecast", Kind: frame.KindFloat},
		frame.Field{Name: "intensity_actual", Kind: frame.KindFloat},
	)
	start := time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC)
	values := []any{80.0, 150.0, 250.0, 320.0, nil, 140.0}
	for i, v := range values {
		from := start.Add(time.Duration(i) * time.Hour)
		f.Append(frame.Row{"from": from, "to": from.Add(30 * time.Minute), "intensity_actual": v})
	}
	return f
}

func factorSnapshot() *frame.Frame {
	f, _ := transform.Factors(frame.FromRecords(nil, []map[string]any{{
		"biomass": 120.0, "coal": 937.0, "gas": 394.0, "solar": 0.0, "note": "ofgem", "ingestion_ts": now,
	}}), nil, now)
	return f
}

type fixture struct {
	conn  storage.StorageConnection
	store *table.Store
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: filepath.Join(root, "datalake")}, "lake")
	require.NoError(t, err)
	store, err := table.NewStore(conn, "snappy")
	require.NoError(t, err)
	return &fixture{conn: conn, store: store, dir: filepath.Join(root, "figures")}
}

func (fx *fixture) seed(t *testing.T) *frame.Frame {
	t.Helper()
	ctx := context.Background()
	detail := transform.IntensityDetail(bronze(), now)
	_, err := fx.store.Overwrite(ctx, tables.SilverIntensity, detail, layout.SilverIntensityPartitions)
	require.NoError(t, err)
	_, err = fx.store.Overwrite(ctx, tables.SilverIntensityDaily, transform.IntensityDaily(detail, now), layout.SilverIntensityPartitions)
	require.NoError(t, err)
	_, err = fx.store.Overwrite(ctx, tables.SilverFactors, factorSnapshot(), nil)
	require.NoError(t, err)
	return detail
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "%s is not a PNG", filepath.Base(path))
}

func TestReporter_WritesFigures(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t)

	r := NewReporter(fx.store, tables, SketchDescriber{}, Options{FiguresDir: fx.dir, Dashboard: true})
	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, outcome.ExitStatus)
	assert.Equal(t, 4, outcome.WriteCount)

	assertPNG(t, filepath.Join(fx.dir, DailyMeanFigure))
	assertPNG(t, filepath.Join(fx.dir, LevelDistributionFigure))
	assertPNG(t, filepath.Join(fx.dir, FactorsFigure))

	html, err := os.ReadFile(filepath.Join(fx.dir, DashboardFile))
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")
	assert.Contains(t, string(html), "Emission factors by fuel")
}

func TestReporter_EmptyLakeIsNoOp(t *testing.T) {
	fx := newFixture(t)

	r := NewReporter(fx.store, tables, nil, Options{FiguresDir: fx.dir})
	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, outcome.ExitStatus)
	_, statErr := os.Stat(fx.dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReporter_SkipsFigureOfEmptyTable(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.store.Overwrite(context.Background(), tables.SilverFactors, factorSnapshot(), nil)
	require.NoError(t, err)

	r := NewReporter(fx.store, tables, nil, Options{FiguresDir: fx.dir})
	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.WriteCount)
	assertPNG(t, filepath.Join(fx.dir, FactorsFigure))
	assert.NoFileExists(t, filepath.Join(fx.dir, DailyMeanFigure))
}

func TestViews(t *testing.T) {
	detail := transform.IntensityDetail(bronze(), now)

	counts := levelCounts(detail)
	assert.Equal(t, []labelCount{
		{"high", 1}, {"low", 1}, {"moderate", 2}, {"unknown", 1}, {"very high", 1},
	}, counts)

	points := dailyMeans(transform.IntensityDaily(detail, now))
	require.Len(t, points, 2)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), points[0].Date)
	assert.Equal(t, 115.0, points[0].Mean)

	fuels := fuelFactors(factorSnapshot())
	assert.Equal(t, []fuelValue{{"solar", 0}, {"biomass", 120}, {"gas", 394}, {"coal", 937}}, fuels)
}

func TestDuckDBDescriber_MatchesSketch(t *testing.T) {
	fx := newFixture(t)
	detail := fx.seed(t)
	ctx := context.Background()

	d, err := NewDescriber("auto", fx.store, fx.conn)
	require.NoError(t, err)
	require.Equal(t, "duckdb", d.Name())

	exact, err := d.Describe(ctx, tables.SilverIntensity, "intensity_value", detail)
	require.NoError(t, err)
	approx, err := SketchDescriber{}.Describe(ctx, tables.SilverIntensity, "intensity_value", detail)
	require.NoError(t, err)

	assert.Equal(t, 5, exact.Count)
	assert.Equal(t, approx.Count, exact.Count)
	assert.InDelta(t, 188.0, exact.Mean, 1e-9)
	assert.InDelta(t, approx.Std, exact.Std, 1e-9)
	assert.Equal(t, 80.0, exact.Min)
	assert.Equal(t, 320.0, exact.Max)
	assert.InDelta(t, exact.P50, approx.P50, exact.P50*0.02)
}

func TestNewDescriber(t *testing.T) {
	d, err := NewDescriber("sketch", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "sketch", d.Name())

	d, err = NewDescriber("auto", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "sketch", d.Name())

	_, err = NewDescriber("spark", nil, nil)
	assert.Error(t, err)
}

func TestFormatSummary(t *testing.T) {
	out := formatSummary("intensity_value", stats.Summary{Count: 3, Mean: 10, Std: math.NaN()})
	assert.Contains(t, out, "count  3")
	assert.Contains(t, out, "mean   10.000000")
	assert.Contains(t, out, "std    NaN")
}

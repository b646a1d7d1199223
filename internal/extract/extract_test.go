package extract_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/carbonlake/internal/extract"
	"github.com/tigerroll/carbonlake/internal/layout"
	storageConfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/local"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
	"github.com/tigerroll/carbonlake/pkg/lake/table"
	"github.com/tigerroll/carbonlake/pkg/lake/upsert"
	"github.com/tigerroll/carbonlake/pkg/lake/window"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	intensity   []map[string]any
	factors     []map[string]any
	err         error
	windows     []window.Window
	factorCalls int
}

func (s *fakeSource) FetchIntensity(_ context.Context, from, to time.Time) (*frame.Frame, error) {
	s.windows = append(s.windows, window.Window{Start: from, End: to})
	if s.err != nil {
		return nil, s.err
	}
	return frame.FromRecords([]string{"from", "to", "intensity_forecast", "intensity_actual", "intensity_index"}, s.intensity), nil
}

func (s *fakeSource) FetchFactors(context.Context) (*frame.Frame, error) {
	s.factorCalls++
	if s.err != nil {
		return nil, s.err
	}
	return frame.FromRecords(nil, s.factors), nil
}

func record(from, to string, forecast, actual any, index string) map[string]any {
	return map[string]any{
		"from":               from,
		"to":                 to,
		"intensity_forecast": forecast,
		"intensity_actual":   actual,
		"intensity_index":    index,
	}
}

type fixture struct {
	source    *fakeSource
	store     *table.Store
	extractor *extract.Extractor
	tables    layout.Tables
}

func newFixture(t *testing.T, src *fakeSource) *fixture {
	t.Helper()
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "lake")
	require.NoError(t, err)
	store, err := table.NewStore(conn, "snappy")
	require.NoError(t, err)

	tables := layout.New("api_carbon_intensity")
	ex := extract.NewExtractor(src, store, upsert.NewMerger(store, upsert.ExistingWins),
		window.NewResolver(0, 0), tables, nil, extract.WithClock(func() time.Time { return now }))
	return &fixture{source: src, store: store, extractor: ex, tables: tables}
}

func TestRunIncremental_FirstRunUsesLookback(t *testing.T) {
	src := &fakeSource{intensity: []map[string]any{
		record("2024-03-10T10:00Z", "2024-03-10T10:30Z", 180.0, 175.0, "moderate"),
		record("2024-03-10T10:30Z", "2024-03-10T11:00Z", 190.0, nil, "moderate"),
	}}
	fix := newFixture(t, src)

	outcome, err := fix.extractor.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, outcome.ExitStatus)
	assert.Equal(t, 2, outcome.ReadCount)
	assert.Equal(t, 2, outcome.WriteCount)

	require.Len(t, src.windows, 1)
	assert.Equal(t, now.Add(-7*24*time.Hour), src.windows[0].Start)
	assert.Equal(t, now, src.windows[0].End)

	stored, err := fix.store.ReadAll(context.Background(), fix.tables.BronzeIntensity)
	require.NoError(t, err)
	require.Equal(t, 2, stored.Len())
	stored.SortBy("from")
	assert.Equal(t, "2024-03-10", stored.Rows[0]["date_part"])
	assert.Equal(t, 175.0, stored.Rows[0]["intensity_actual"])
	assert.Nil(t, stored.Rows[1]["intensity_actual"])
	assert.Equal(t, now, stored.Rows[1]["ingestion_ts"])
}

func TestRunIncremental_ResumesAfterStoredMaximum(t *testing.T) {
	src := &fakeSource{intensity: []map[string]any{
		record("2024-03-10T10:00Z", "2024-03-10T10:30Z", 180.0, 175.0, "moderate"),
		record("2024-03-10T10:30Z", "2024-03-10T11:00Z", 190.0, nil, "moderate"),
	}}
	fix := newFixture(t, src)
	ctx := context.Background()
	_, err := fix.extractor.RunIncremental(ctx)
	require.NoError(t, err)

	// The source republishes 10:30 with an actual value; the stored row wins.
	src.intensity = []map[string]any{
		record("2024-03-10T10:30Z", "2024-03-10T11:00Z", 190.0, 188.0, "moderate"),
		record("2024-03-10T11:00Z", "2024-03-10T11:30Z", 210.0, 205.0, "high"),
	}
	outcome, err := fix.extractor.RunIncremental(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.WriteCount)

	require.Len(t, src.windows, 2)
	assert.Equal(t, time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC), src.windows[1].Start)

	stored, err := fix.store.ReadAll(ctx, fix.tables.BronzeIntensity)
	require.NoError(t, err)
	require.Equal(t, 3, stored.Len())
	stored.SortBy("from")
	assert.Nil(t, stored.Rows[1]["intensity_actual"])
	assert.Equal(t, 205.0, stored.Rows[2]["intensity_actual"])
}

func TestRunIncremental_UpToDateIsNoOp(t *testing.T) {
	src := &fakeSource{intensity: []map[string]any{
		record("2024-03-10T11:30Z", "2024-03-10T12:00Z", 150.0, 150.0, "moderate"),
	}}
	fix := newFixture(t, src)
	ctx := context.Background()
	_, err := fix.extractor.RunIncremental(ctx)
	require.NoError(t, err)

	outcome, err := fix.extractor.RunIncremental(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, outcome.ExitStatus)
	assert.Len(t, src.windows, 1, "no fetch once the table is current")
}

func TestRunIncremental_EmptyResponseWritesNothing(t *testing.T) {
	fix := newFixture(t, &fakeSource{})

	outcome, err := fix.extractor.RunIncremental(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusNoOp, outcome.ExitStatus)
	assert.False(t, fix.store.Exists(context.Background(), fix.tables.BronzeIntensity))
}

func TestRunIncremental_FetchFailureIsBatchError(t *testing.T) {
	fix := newFixture(t, &fakeSource{err: errors.New("503 service unavailable")})

	_, err := fix.extractor.RunIncremental(context.Background())
	require.Error(t, err)
	be, ok := exception.AsBatchError(err)
	require.True(t, ok)
	assert.Equal(t, "Extractor", be.Module)
	assert.False(t, fix.store.Exists(context.Background(), fix.tables.BronzeIntensity))
}

func TestRunFullFactors_ReplacesSnapshot(t *testing.T) {
	src := &fakeSource{factors: []map[string]any{
		{"Biomass ": 120.0, "Coal": 937.0, "Dutch Imports": "474"},
	}}
	fix := newFixture(t, src)
	ctx := context.Background()

	outcome, err := fix.extractor.RunFullFactors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.WriteCount)

	src.factors = []map[string]any{{"Biomass": 110.0, "Coal": 900.0}}
	_, err = fix.extractor.RunFullFactors(ctx)
	require.NoError(t, err)

	stored, err := fix.store.ReadAll(ctx, fix.tables.BronzeFactors)
	require.NoError(t, err)
	require.Equal(t, 1, stored.Len())
	assert.Equal(t, 110.0, stored.Rows[0]["biomass"])
	assert.False(t, stored.Has("dutch imports"))
	assert.Equal(t, 2, src.factorCalls)
}

func TestNormalizeIntensity(t *testing.T) {
	raw := frame.FromRecords(nil, []map[string]any{
		record("2024-03-09T23:30Z", "2024-03-10T00:00Z", "n/a", 120.0, "moderate"),
	})

	out := extract.NormalizeIntensity(raw, now)
	require.Equal(t, 1, out.Len())
	row := out.Rows[0]
	assert.Equal(t, time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC), row["from"])
	assert.Equal(t, "2024-03-09", row["date_part"])
	assert.Nil(t, row["intensity_forecast"], "unparseable forecast becomes null")
	assert.Equal(t, 120.0, row["intensity_actual"])
	fd, ok := out.Field("intensity_forecast")
	require.True(t, ok)
	assert.Equal(t, frame.KindFloat, fd.Kind)
	assert.Equal(t, now, row["ingestion_ts"])
	assert.False(t, raw.Has("date_part"), "input is not modified")
}

func TestNormalizeFactors(t *testing.T) {
	raw := frame.FromRecords(nil, []map[string]any{
		{" Gas ": 394.0, "gCO2perkWh_note": "12.5", "Source": "ofgem"},
	})

	out, err := extract.NormalizeFactors(raw, now)
	require.NoError(t, err)
	assert.Equal(t, 394.0, out.Rows[0]["gas"])
	assert.Equal(t, 12.5, out.Rows[0]["gco2perkwh_note"])
	assert.Equal(t, "ofgem", out.Rows[0]["source"])

	clash := frame.FromRecords(nil, []map[string]any{{"Coal": 1.0, "coal": 2.0}})
	_, err = extract.NormalizeFactors(clash, now)
	assert.Error(t, err)
}

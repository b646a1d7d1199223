package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/carbonlake/internal/report"
	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
)

const testIntensity = `{"data":[
 {"from":"2024-03-10T00:00Z","to":"2024-03-10T00:30Z","intensity":{"forecast":120,"actual":110,"index":"moderate"}},
 {"from":"2024-03-10T00:30Z","to":"2024-03-10T01:00Z","intensity":{"forecast":90,"actual":null,"index":"low"}},
 {"from":"2024-03-11T00:00Z","to":"2024-03-11T00:30Z","intensity":{"forecast":260,"actual":255,"index":"high"}}
]}`

const testFactors = `{"data":[{"Biomass":120,"Coal":937,"Gas (Combined Cycle)":394,"Wind":0}]}`

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/intensity/factors":
			w.Write([]byte(testFactors))
		case strings.HasPrefix(r.URL.Path, "/intensity/"):
			w.Write([]byte(testIntensity))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL, lake, figures string) []byte {
	return []byte(fmt.Sprintf(`carbonlake:
  source:
    base_url: %s
    timeout_seconds: 5
  lake:
    path: %s
  retry:
    max_attempts: 1
    initial_interval: 1
  report:
    figures_dir: %s
    dashboard: true
    describe_engine: sketch
  system:
    logging:
      level: WARN
`, baseURL, lake, figures))
}

func TestRunApplication_RunsEveryStage(t *testing.T) {
	srv := newTestAPI(t)
	lake := filepath.Join(t.TempDir(), "datalake")
	figures := filepath.Join(t.TempDir(), "figures")
	t.Setenv(config.EnvBaseURL, srv.URL)
	t.Setenv(config.EnvDataLakePath, lake)

	code := RunApplication(context.Background(), Options{
		EmbeddedConfig: testConfig(srv.URL, lake, figures),
	})
	require.Equal(t, 0, code)

	for _, dir := range []string{
		"bronze/api_carbon_intensity/intensity/_delta_log",
		"bronze/api_carbon_intensity/factors/_delta_log",
		"silver/api_carbon_intensity/intensity/_delta_log",
		"silver/api_carbon_intensity/intensity_daily/_delta_log",
		"silver/api_carbon_intensity/factors/_delta_log",
	} {
		assert.DirExists(t, filepath.Join(lake, dir))
	}
	for _, name := range []string{report.DailyMeanFigure, report.LevelDistributionFigure, report.FactorsFigure, report.DashboardFile} {
		assert.FileExists(t, filepath.Join(figures, name))
	}
}

func TestRunApplication_UnknownStageFails(t *testing.T) {
	srv := newTestAPI(t)
	lake := filepath.Join(t.TempDir(), "datalake")
	t.Setenv(config.EnvBaseURL, srv.URL)
	t.Setenv(config.EnvDataLakePath, lake)

	code := RunApplication(context.Background(), Options{
		EmbeddedConfig: testConfig(srv.URL, lake, t.TempDir()),
		Stages:         []string{"gold"},
	})
	assert.Equal(t, 1, code)
	_, err := os.Stat(filepath.Join(lake, "bronze"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunApplication_InvalidConfig(t *testing.T) {
	code := RunApplication(context.Background(), Options{
		EmbeddedConfig: []byte("carbonlake:\n  extract:\n    merge_strategy: newest\n"),
	})
	assert.Equal(t, 1, code)
}

func TestDBProviderOptions_SkipsUnknown(t *testing.T) {
	assert.Len(t, DBProviderOptions([]string{"sqlite", "oracle", "postgres"}), 2)
	assert.Empty(t, DBProviderOptions(nil))
}

func TestNewMerger_RejectsUnknownStrategy(t *testing.T) {
	cfg := config.NewConfig()
	cfg.CarbonLake.Extract.MergeStrategy = "newest"
	_, err := NewMerger(nil, cfg)
	assert.Error(t, err)
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/tigerroll/carbonlake/pkg/batch/core/config"
)

const sampleYAML = `
carbonlake:
  source:
    timeout_seconds: 10
  lake:
    source_name: ${LAKE_SOURCE_NAME:-api_carbon_intensity}
  retry:
    max_attempts: 5
  extract:
    merge_strategy: new_wins
  report:
    dashboard: true
  adapter:
    storage:
      lake:
        type: local
    database:
      history:
        type: sqlite
        database: ${HISTORY_DB:-runs.db}
`

func TestNewConfig_Defaults(t *testing.T) {
	cfg := coreconfig.NewConfig()
	c := cfg.CarbonLake

	assert.Equal(t, "https://api.carbonintensity.org.uk", c.Source.BaseURL)
	assert.Equal(t, 30, c.Source.TimeoutSeconds)
	assert.Equal(t, "./datalake", c.Lake.Path)
	assert.Equal(t, "api_carbon_intensity", c.Lake.SourceName)
	assert.Equal(t, "snappy", c.Lake.Compression)
	assert.Equal(t, 3, c.Retry.MaxAttempts)
	assert.Equal(t, 2000, c.Retry.InitialInterval)
	assert.Equal(t, 168, c.Extract.LookbackHours)
	assert.Equal(t, 30, c.Extract.IntervalMinutes)
	assert.Equal(t, coreconfig.MergeExistingWins, c.Extract.MergeStrategy)
	assert.Equal(t, coreconfig.DefaultFactorAliases(), c.Transform.FactorAliases)
	assert.Equal(t, "INFO", c.System.Logging.Level)
	assert.NoError(t, coreconfig.Validate(cfg))
}

func TestLoadConfig_MergesYAMLOverDefaults(t *testing.T) {
	cfg, err := coreconfig.LoadConfig("", coreconfig.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)
	c := cfg.CarbonLake

	assert.Equal(t, 10, c.Source.TimeoutSeconds)
	assert.Equal(t, coreconfig.DefaultBaseURL, c.Source.BaseURL, "unset values keep their defaults")
	assert.Equal(t, 5, c.Retry.MaxAttempts)
	assert.Equal(t, coreconfig.MergeNewWins, c.Extract.MergeStrategy)
	assert.True(t, c.Report.Dashboard)
	assert.Equal(t, "api_carbon_intensity", c.Lake.SourceName, "placeholder default applies")

	adapters, ok := c.AdapterConfigs["database"].(map[string]interface{})
	require.True(t, ok)
	history, ok := adapters["history"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "runs.db", history["database"])
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CARBONLAKE_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("CARBONLAKE_REPORT_HEAD_ROWS", "12")
	t.Setenv("CARBONLAKE_TRANSFORM_FACTOR_ALIASES", "gco2perkwh, co2")
	t.Setenv("BASE_URL", "http://localhost:8080")
	t.Setenv("DATA_LAKE_PATH", "/tmp/lake")

	cfg, err := coreconfig.LoadConfig("", coreconfig.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)
	c := cfg.CarbonLake

	assert.Equal(t, 7, c.Retry.MaxAttempts)
	assert.Equal(t, 12, c.Report.HeadRows)
	assert.Equal(t, []string{"gco2perkwh", "co2"}, c.Transform.FactorAliases)
	assert.Equal(t, "http://localhost:8080", c.Source.BaseURL)
	assert.Equal(t, "/tmp/lake", c.Lake.Path)
}

func TestLoadConfig_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DATA_LAKE_PATH=/srv/lake-from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("DATA_LAKE_PATH") })

	cfg, err := coreconfig.LoadConfig(envFile, nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/lake-from-dotenv", cfg.CarbonLake.Lake.Path)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	_, err := coreconfig.LoadConfig("", coreconfig.EmbeddedConfig("carbonlake:\n  extract:\n    merge_strategy: newest\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge_strategy")

	t.Setenv("CARBONLAKE_RETRY_MAX_ATTEMPTS", "not-a-number")
	_, err = coreconfig.LoadConfig("", nil)
	require.Error(t, err)
}

func TestOsEnvironmentExpander(t *testing.T) {
	t.Setenv("CL_BUCKET", "carbon-bucket")
	out, err := coreconfig.NewOsEnvironmentExpander().Expand([]byte("a=${CL_BUCKET} b=${CL_MISSING:-fallback} c=${CL_MISSING}"))
	require.NoError(t, err)
	assert.Equal(t, "a=carbon-bucket b=fallback c=", string(out))
}

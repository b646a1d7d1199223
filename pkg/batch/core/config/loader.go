package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

const moduleName = "config"

const (
	// EnvBaseURL overrides carbonlake.source.base_url.
	EnvBaseURL = "BASE_URL"
	// EnvDataLakePath overrides carbonlake.lake.path.
	EnvDataLakePath = "DATA_LAKE_PATH"
)

// LoadConfig builds the application configuration.
//
// Sources, lowest precedence first: NewConfig defaults, the embedded YAML
// (after ${VAR} expansion), CARBONLAKE_* environment variables derived from
// yaml tags, and finally BASE_URL / DATA_LAKE_PATH. The .env file at
// envFilePath is loaded into the process environment before anything else.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, NewOsEnvironmentExpander())
}

func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not loaded: %v", envFilePath, err)
		}
	}

	cfg := NewConfig()

	if len(embeddedConfig) > 0 {
		expanded, err := expander.Expand(embeddedConfig)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to expand environment placeholders in embedded config", err, false, false)
		}
		var yamlConfig Config
		if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
		}
		mergeConfig(cfg, &yamlConfig)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	applyLegacyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err, false, false)
	}
	return cfg, nil
}

// applyLegacyEnv applies the two unprefixed variables understood by earlier deployments.
func applyLegacyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvBaseURL); ok && strings.TrimSpace(v) != "" {
		cfg.CarbonLake.Source.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvDataLakePath); ok && strings.TrimSpace(v) != "" {
		cfg.CarbonLake.Lake.Path = strings.TrimSpace(v)
	}
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func Validate(cfg *Config) error {
	c := cfg.CarbonLake
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must not be empty")
	}
	if c.Lake.Path == "" {
		return fmt.Errorf("lake.path must not be empty")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.InitialInterval < 0 {
		return fmt.Errorf("retry.initial_interval must not be negative, got %d", c.Retry.InitialInterval)
	}
	if c.Extract.LookbackHours <= 0 || c.Extract.IntervalMinutes <= 0 {
		return fmt.Errorf("extract.lookback_hours and extract.interval_minutes must be positive")
	}
	switch c.Extract.MergeStrategy {
	case MergeExistingWins, MergeNewWins:
	default:
		return fmt.Errorf("extract.merge_strategy must be '%s' or '%s', got '%s'", MergeExistingWins, MergeNewWins, c.Extract.MergeStrategy)
	}
	switch strings.ToLower(c.Report.DescribeEngine) {
	case "auto", "duckdb", "sketch":
	default:
		return fmt.Errorf("report.describe_engine must be auto, duckdb or sketch, got '%s'", c.Report.DescribeEngine)
	}
	for _, name := range c.Retry.RetryableErrors {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("retry.retryable_errors contains an empty name")
		}
	}
	return nil
}

// mergeConfig copies every non-zero value of source into dest.
func mergeConfig(dest, source *Config) {
	d, s := &dest.CarbonLake, &source.CarbonLake

	mergeString(&d.Source.BaseURL, s.Source.BaseURL)
	mergeInt(&d.Source.TimeoutSeconds, s.Source.TimeoutSeconds)
	mergeString(&d.Source.UserAgent, s.Source.UserAgent)

	mergeString(&d.Lake.Path, s.Lake.Path)
	mergeString(&d.Lake.SourceName, s.Lake.SourceName)
	mergeString(&d.Lake.StorageRef, s.Lake.StorageRef)
	mergeString(&d.Lake.Compression, s.Lake.Compression)

	mergeInt(&d.Retry.MaxAttempts, s.Retry.MaxAttempts)
	mergeInt(&d.Retry.InitialInterval, s.Retry.InitialInterval)
	if s.Retry.RetryableErrors != nil {
		d.Retry.RetryableErrors = s.Retry.RetryableErrors
	}

	mergeInt(&d.Extract.LookbackHours, s.Extract.LookbackHours)
	mergeInt(&d.Extract.IntervalMinutes, s.Extract.IntervalMinutes)
	mergeString(&d.Extract.MergeStrategy, s.Extract.MergeStrategy)

	if len(s.Transform.FactorAliases) > 0 {
		d.Transform.FactorAliases = s.Transform.FactorAliases
	}

	mergeString(&d.Report.FiguresDir, s.Report.FiguresDir)
	mergeInt(&d.Report.HeadRows, s.Report.HeadRows)
	d.Report.Dashboard = d.Report.Dashboard || s.Report.Dashboard
	mergeString(&d.Report.DescribeEngine, s.Report.DescribeEngine)

	mergeString(&d.System.Logging.Level, s.System.Logging.Level)

	mergeString(&d.Metrics.TextfilePath, s.Metrics.TextfilePath)
	mergeString(&d.Metrics.PushgatewayURL, s.Metrics.PushgatewayURL)
	mergeString(&d.Metrics.JobName, s.Metrics.JobName)

	mergeString(&d.Telemetry.OTLPEndpoint, s.Telemetry.OTLPEndpoint)
	mergeString(&d.Telemetry.Protocol, s.Telemetry.Protocol)
	d.Telemetry.Insecure = d.Telemetry.Insecure || s.Telemetry.Insecure
	mergeString(&d.Telemetry.ServiceName, s.Telemetry.ServiceName)
	if s.Telemetry.SampleRatio != 0 {
		d.Telemetry.SampleRatio = s.Telemetry.SampleRatio
	}

	d.History.Enabled = d.History.Enabled || s.History.Enabled
	mergeString(&d.History.DBRef, s.History.DBRef)

	if s.AdapterConfigs != nil {
		if d.AdapterConfigs == nil {
			d.AdapterConfigs = make(map[string]interface{})
		}
		for key, value := range s.AdapterConfigs {
			d.AdapterConfigs[key] = value
		}
	}
}

func mergeString(dest *string, src string) {
	if strings.TrimSpace(src) != "" {
		*dest = src
	}
}

func mergeInt(dest *int, src int) {
	if src != 0 {
		*dest = src
	}
}

// loadStructFromEnv walks val and overrides fields from environment variables
// named after the upper-cased yaml tag path, e.g. CARBONLAKE_RETRY_MAX_ATTEMPTS.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField converts value to the field's kind. Maps are left untouched.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}

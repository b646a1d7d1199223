package config

// EmbeddedConfig holds the raw application.yaml bundled into the binary.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

const (
	// DefaultBaseURL is the public Carbon Intensity API.
	DefaultBaseURL = "https://api.carbonintensity.org.uk"
	// DefaultLakePath is the data lake root used when DATA_LAKE_PATH is unset.
	DefaultLakePath = "./datalake"
	// DefaultSourceName is the <source> segment of every table location.
	DefaultSourceName = "api_carbon_intensity"

	// MergeExistingWins keeps the stored row when a key collides during upsert.
	MergeExistingWins = "existing_wins"
	// MergeNewWins replaces the stored row with the freshly fetched one.
	MergeNewWins = "new_wins"
)

// SourceConfig configures the Carbon Intensity HTTP client.
type SourceConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // Per-request timeout.
	UserAgent      string `yaml:"user_agent"`
}

// LakeConfig locates the data lake and controls how tables are written.
type LakeConfig struct {
	Path        string `yaml:"path"`        // Lake root; the local storage base directory unless the storage adapter overrides it.
	SourceName  string `yaml:"source_name"` // <source> path segment.
	StorageRef  string `yaml:"storage_ref"` // Name of the entry under adapter.storage.
	Compression string `yaml:"compression"` // Parquet codec: snappy, zstd, gzip or none.
}

// RetryConfig configures the bounded retry loop around source fetches.
type RetryConfig struct {
	MaxAttempts     int      `yaml:"max_attempts"`
	InitialInterval int      `yaml:"initial_interval"` // Fixed backoff in milliseconds.
	RetryableErrors []string `yaml:"retryable_errors"` // Extra error names treated as retryable.
}

// ExtractConfig configures the extraction stages.
type ExtractConfig struct {
	LookbackHours   int    `yaml:"lookback_hours"`   // Bootstrap window when the intensity table is empty.
	IntervalMinutes int    `yaml:"interval_minutes"` // Offset added to the stored max `from`.
	MergeStrategy   string `yaml:"merge_strategy"`
}

// TransformConfig configures the silver stages.
type TransformConfig struct {
	// FactorAliases lists accepted source names for the primary gCO2/kWh factor column.
	FactorAliases []string `yaml:"factor_aliases"`
}

// ReportConfig configures the view stage.
type ReportConfig struct {
	FiguresDir     string `yaml:"figures_dir"`
	HeadRows       int    `yaml:"head_rows"`
	Dashboard      bool   `yaml:"dashboard"`
	DescribeEngine string `yaml:"describe_engine"` // auto, duckdb or sketch.
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig configures Prometheus output for a finished run.
type MetricsConfig struct {
	TextfilePath   string `yaml:"textfile_path"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	JobName        string `yaml:"job_name"`

	// AsyncBufferSize > 0 records metrics on a background worker with a queue of that size.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Protocol     string  `yaml:"protocol"` // http or grpc.
	Insecure     bool    `yaml:"insecure"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// HistoryConfig configures the run-history repository.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBRef   string `yaml:"db_ref"` // Name of the entry under adapter.database.
}

// CarbonLakeConfig holds everything under the "carbonlake" key.
type CarbonLakeConfig struct {
	Source    SourceConfig    `yaml:"source"`
	Lake      LakeConfig      `yaml:"lake"`
	Retry     RetryConfig     `yaml:"retry"`
	Extract   ExtractConfig   `yaml:"extract"`
	Transform TransformConfig `yaml:"transform"`
	Report    ReportConfig    `yaml:"report"`
	System    SystemConfig    `yaml:"system"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`
	// AdapterConfigs holds named adapter settings: adapter.storage.<name> and adapter.database.<name>.
	AdapterConfigs map[string]interface{} `yaml:"adapter"`
}

// Config is the root of the application configuration.
type Config struct {
	CarbonLake CarbonLakeConfig `yaml:"carbonlake"`
}

// DefaultFactorAliases are the accepted names of the primary factor column.
func DefaultFactorAliases() []string {
	return []string{"gco2perkwh", "gco2_per_kwh", "gco2/kwh", "factor_gco2perkwh", "intensity_gco2perkwh"}
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		CarbonLake: CarbonLakeConfig{
			Source: SourceConfig{
				BaseURL:        DefaultBaseURL,
				TimeoutSeconds: 30,
				UserAgent:      "carbonlake/1.0",
			},
			Lake: LakeConfig{
				Path:        DefaultLakePath,
				SourceName:  DefaultSourceName,
				StorageRef:  "lake",
				Compression: "snappy",
			},
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 2000,
			},
			Extract: ExtractConfig{
				LookbackHours:   7 * 24,
				IntervalMinutes: 30,
				MergeStrategy:   MergeExistingWins,
			},
			Transform: TransformConfig{
				FactorAliases: DefaultFactorAliases(),
			},
			Report: ReportConfig{
				HeadRows:       5,
				DescribeEngine: "auto",
			},
			System: SystemConfig{
				Logging: LoggingConfig{Level: string(LogLevelInfo)},
			},
			Metrics: MetricsConfig{
				JobName: "carbonlake",
			},
			Telemetry: TelemetryConfig{
				Protocol:    "http",
				ServiceName: "carbonlake",
				SampleRatio: 1.0,
			},
			History: HistoryConfig{
				DBRef: "history",
			},
			AdapterConfigs: map[string]interface{}{},
		},
	}
}

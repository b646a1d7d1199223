// Package config provides configuration loading for carbonlake.
// This file exposes configuration sections to fx so components can depend on
// the slice of configuration they actually use.
package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts the logging section.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.CarbonLake.System.Logging
}

// NewRetryConfigProvider extracts the retry section.
func NewRetryConfigProvider(cfg *Config) *RetryConfig {
	return &cfg.CarbonLake.Retry
}

// NewLakeConfigProvider extracts the lake section.
func NewLakeConfigProvider(cfg *Config) *LakeConfig {
	return &cfg.CarbonLake.Lake
}

// Module provides configuration sections and the EnvironmentExpander.
var Module = fx.Options(
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewRetryConfigProvider),
	fx.Provide(NewLakeConfigProvider),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)

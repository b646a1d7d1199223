package database

import (
	"fmt"
	"path/filepath"

	"github.com/mitchellh/mapstructure"

	dbconfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/database/config"
	coreConfig "github.com/tigerroll/carbonlake/pkg/batch/core/config"
)

// DefaultHistoryFile is the sqlite file used when the history connection is not configured.
const DefaultHistoryFile = "carbonlake_history.db"

// DecodeDatabaseConfig reads adapter.database.<name> from cfg.
//
// The history connection (history.db_ref) may be omitted; it then defaults to
// a sqlite file next to the lake root.
func DecodeDatabaseConfig(cfg *coreConfig.Config, name string) (dbconfig.DatabaseConfig, error) {
	var dbConfig dbconfig.DatabaseConfig

	rawConfig, found, err := lookupNamedConfig(cfg, name)
	if err != nil {
		return dbConfig, err
	}
	if !found {
		if name != cfg.CarbonLake.History.DBRef {
			return dbConfig, fmt.Errorf("database configuration '%s' not found under 'adapter.database' configs", name)
		}
		dbConfig.Type = "sqlite"
	} else {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &dbConfig,
			TagName:          "yaml",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return dbConfig, fmt.Errorf("failed to create decoder for database config '%s': %w", name, err)
		}
		if err := decoder.Decode(rawConfig); err != nil {
			return dbConfig, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
		}
	}

	if dbConfig.Type == "" {
		dbConfig.Type = "sqlite"
	}
	if dbConfig.Type == "sqlite" && dbConfig.Database == "" {
		dbConfig.Database = filepath.Join(filepath.Dir(filepath.Clean(cfg.CarbonLake.Lake.Path)), DefaultHistoryFile)
	}
	return dbConfig, nil
}

func lookupNamedConfig(cfg *coreConfig.Config, name string) (interface{}, bool, error) {
	rawDatabase, ok := cfg.CarbonLake.AdapterConfigs["database"]
	if !ok || rawDatabase == nil {
		return nil, false, nil
	}
	dbMap, ok := rawDatabase.(map[string]interface{})
	if !ok {
		return nil, false, fmt.Errorf("invalid 'adapter.database' configuration format: expected a map, got %T", rawDatabase)
	}
	namedConfig, ok := dbMap[name]
	return namedConfig, ok, nil
}

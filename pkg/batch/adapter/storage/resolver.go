package storage

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/fx"

	storageConfig "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/carbonlake/pkg/batch/core/config"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// DecodeStorageConfig reads adapter.storage.<name> from cfg.
//
// The lake connection (lake.storage_ref) may be omitted entirely; it then
// defaults to a local adapter rooted at lake.path. A local adapter without
// base_dir is rooted at lake.path as well, so DATA_LAKE_PATH keeps working
// when only the backend type is configured.
func DecodeStorageConfig(cfg *coreConfig.Config, name string) (storageConfig.StorageConfig, error) {
	var storageCfg storageConfig.StorageConfig

	namedConfig, found, err := lookupNamedConfig(cfg, name)
	if err != nil {
		return storageCfg, err
	}
	if !found {
		if name != cfg.CarbonLake.Lake.StorageRef {
			return storageCfg, fmt.Errorf("storage configuration for name '%s' not found", name)
		}
		storageCfg.Type = "local"
	} else {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &storageCfg,
			TagName:          "yaml",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return storageCfg, fmt.Errorf("failed to create decoder for storage config '%s': %w", name, err)
		}
		if err := decoder.Decode(namedConfig); err != nil {
			return storageCfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
		}
	}

	if storageCfg.Type == "" {
		storageCfg.Type = "local"
	}
	if storageCfg.Type == "local" && storageCfg.BaseDir == "" {
		storageCfg.BaseDir = cfg.CarbonLake.Lake.Path
	}
	return storageCfg, nil
}

func lookupNamedConfig(cfg *coreConfig.Config, name string) (interface{}, bool, error) {
	rawStorage, ok := cfg.CarbonLake.AdapterConfigs["storage"]
	if !ok || rawStorage == nil {
		return nil, false, nil
	}
	storageMap, ok := rawStorage.(map[string]interface{})
	if !ok {
		return nil, false, fmt.Errorf("invalid 'adapter.storage' configuration format: expected a map, got %T", rawStorage)
	}
	namedConfig, ok := storageMap[name]
	return namedConfig, ok, nil
}

// DefaultConnectionResolver dispatches a named connection to the provider of its configured type.
type DefaultConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *coreConfig.Config
}

// ResolverParams collects every registered StorageProvider.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *coreConfig.Config
}

// NewDefaultConnectionResolver indexes the registered providers by type.
func NewDefaultConnectionResolver(p ResolverParams) *DefaultConnectionResolver {
	providers := make(map[string]StorageProvider, len(p.Providers))
	for _, provider := range p.Providers {
		providers[provider.Type()] = provider
	}
	return &DefaultConnectionResolver{providers: providers, cfg: p.Cfg}
}

// ResolveStorageConnection implements StorageConnectionResolver.
func (r *DefaultConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	storageCfg, err := DecodeStorageConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider registered for type '%s' (connection '%s')", storageCfg.Type, name)
	}
	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, storageCfg.Type, err)
	}
	logger.Debugf("Resolved storage connection '%s' (%s).", name, storageCfg.Type)
	return conn, nil
}

// CloseAll closes the connections of every registered provider.
func (r *DefaultConnectionResolver) CloseAll() error {
	var firstErr error
	for typ, provider := range r.providers {
		if err := provider.CloseAll(); err != nil {
			logger.Errorf("Failed to close storage connections of provider '%s': %v", typ, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

var _ StorageConnectionResolver = (*DefaultConnectionResolver)(nil)

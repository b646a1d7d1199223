package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/carbonlake/pkg/batch/adapter/storage"
)

// Module registers the local provider in the storage_providers group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.ResultTags(storageAdapter.StorageProviderGroup),
	)),
)

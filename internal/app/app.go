// Package app assembles the carbonlake pipeline with fx and runs it once.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/carbonlake/internal/extract"
	"github.com/tigerroll/carbonlake/internal/layout"
	"github.com/tigerroll/carbonlake/internal/pipeline"
	"github.com/tigerroll/carbonlake/internal/report"
	"github.com/tigerroll/carbonlake/internal/source"
	"github.com/tigerroll/carbonlake/internal/transform"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/carbonlake/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/carbonlake/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/carbonlake/pkg/batch/core/config"
	"github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
	"github.com/tigerroll/carbonlake/pkg/batch/engine/step/retry"
	inframetrics "github.com/tigerroll/carbonlake/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/carbonlake/pkg/batch/infrastructure/repository"
	"github.com/tigerroll/carbonlake/pkg/batch/listener"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
	"github.com/tigerroll/carbonlake/pkg/lake/table"
	"github.com/tigerroll/carbonlake/pkg/lake/upsert"
	"github.com/tigerroll/carbonlake/pkg/lake/window"
)

// DBProviderMap maps a DB_ADAPTORS entry to its provider constructor.
var DBProviderMap = map[string]func(cfg *config.Config) database.DBProvider{
	"postgres": postgres.NewProvider,
	"mysql":    mysql.NewProvider,
	"sqlite":   sqlite.NewProvider,
}

// DBProviderOptions registers the named providers in the db_providers group.
// Unknown names are skipped with a warning.
func DBProviderOptions(names []string) []fx.Option {
	options := make([]fx.Option, 0, len(names))
	for _, name := range names {
		provider, ok := DBProviderMap[name]
		if !ok {
			logger.Warnf("DB provider '%s' is not supported. Skipping.", name)
			continue
		}
		options = append(options, fx.Provide(fx.Annotate(provider, fx.ResultTags(`group:"`+database.DBProviderGroup+`"`))))
		logger.Debugf("DB provider '%s' registered.", name)
	}
	return options
}

// NewLakeStore opens the table store on the lake.storage_ref connection.
func NewLakeStore(lc fx.Lifecycle, cfg *config.Config, resolver *storage.DefaultConnectionResolver) (*table.Store, error) {
	lake := cfg.CarbonLake.Lake
	conn, err := resolver.ResolveStorageConnection(context.Background(), lake.StorageRef)
	if err != nil {
		return nil, fmt.Errorf("lake storage '%s': %w", lake.StorageRef, err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return resolver.CloseAll()
		},
	})
	logger.Infof("Lake '%s' on %s storage (compression: %s).", lake.Path, conn.Type(), lake.Compression)
	return table.NewStore(conn, lake.Compression)
}

// NewSourceClient builds the API client with the configured retry policy.
func NewSourceClient(cfg *config.Config) *source.Client {
	return source.NewClient(&cfg.CarbonLake.Source, retry.NewRetryPolicy(&cfg.CarbonLake.Retry))
}

// NewMerger builds the upsert merger for extract.merge_strategy.
func NewMerger(store *table.Store, cfg *config.Config) (*upsert.Merger, error) {
	strategy, err := upsert.ParseStrategy(cfg.CarbonLake.Extract.MergeStrategy)
	if err != nil {
		return nil, err
	}
	return upsert.NewMerger(store, strategy), nil
}

func NewWindowResolver(cfg *config.Config) window.Resolver {
	ex := cfg.CarbonLake.Extract
	return window.NewResolver(time.Duration(ex.LookbackHours)*time.Hour, time.Duration(ex.IntervalMinutes)*time.Minute)
}

func NewExtractor(
	client *source.Client,
	store *table.Store,
	merger *upsert.Merger,
	resolver window.Resolver,
	tables layout.Tables,
	recorder metrics.MetricRecorder,
) *extract.Extractor {
	return extract.NewExtractor(client, store, merger, resolver, tables, recorder)
}

func NewTransformStage(store *table.Store, tables layout.Tables, cfg *config.Config, recorder metrics.MetricRecorder) *transform.Stage {
	return transform.NewStage(store, tables, cfg.CarbonLake.Transform.FactorAliases, recorder)
}

// NewReporter builds the view stage with the describe engine of report.describe_engine.
func NewReporter(store *table.Store, tables layout.Tables, cfg *config.Config) (*report.Reporter, error) {
	rc := cfg.CarbonLake.Report
	describer, err := report.NewDescriber(rc.DescribeEngine, store, store.Connection())
	if err != nil {
		return nil, err
	}
	return report.NewReporter(store, tables, describer, report.Options{
		FiguresDir: layout.FiguresDir(cfg),
		HeadRows:   rc.HeadRows,
		Dashboard:  rc.Dashboard,
	}), nil
}

// Module provides the lake, the stage implementations and the runner.
var Module = fx.Options(
	fx.Provide(storage.NewDefaultConnectionResolver),
	fx.Provide(NewLakeStore),
	fx.Provide(func(cfg *config.LakeConfig) layout.Tables { return layout.FromConfig(cfg) }),
	fx.Provide(NewSourceClient),
	fx.Provide(NewMerger),
	fx.Provide(NewWindowResolver),
	fx.Provide(NewExtractor),
	fx.Provide(NewTransformStage),
	fx.Provide(NewReporter),
	fx.Provide(pipeline.NewStages),
	fx.Provide(pipeline.NewRunner),
)

// Options are the inputs of one application run.
type Options struct {
	EnvFilePath    string
	EmbeddedConfig config.EmbeddedConfig
	// Stages selects stages by name; empty runs all of them.
	Stages      []string
	DBProviders []string
}

// RunApplication loads the configuration, runs the selected stages once and
// returns the process exit code.
func RunApplication(ctx context.Context, opts Options) int {
	cfg, err := config.LoadConfig(opts.EnvFilePath, opts.EmbeddedConfig)
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return 1
	}
	logger.SetLogLevel(cfg.CarbonLake.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.CarbonLake.System.Logging.Level)

	fxOptions := []fx.Option{
		fx.Supply(
			cfg,
			fx.Annotate(ctx, fx.As(new(context.Context)), fx.ResultTags(`name:"appCtx"`)),
			fx.Annotate(opts.Stages, fx.ResultTags(`name:"stageSelection"`)),
		),
		logger.Module,
		config.Module,
		local.Module,
		gcs.Module,
		gormadapter.Module,
		repository.Module,
		inframetrics.Module,
		listener.Module,
		Module,
		fx.Invoke(startPipelineRun),
	}
	fxOptions = append(fxOptions, DBProviderOptions(opts.DBProviders)...)

	app := fx.New(fxOptions...)
	if err := app.Err(); err != nil {
		logger.Errorf("Failed to build application: %v", err)
		return 1
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Failed to start application: %v", err)
		return 1
	}

	signal := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Failed to stop application cleanly: %v", err)
	}
	return signal.ExitCode
}

type runParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Runner     *pipeline.Runner
	AppCtx     context.Context `name:"appCtx"`
	Stages     []string        `name:"stageSelection"`
}

// startPipelineRun runs the pipeline in the background once the app has
// started, then asks fx to shut down with the run's exit code.
func startPipelineRun(p runParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				code := 1
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in pipeline run: %v", r)
						code = 1
					}
					logger.Infof("Requesting application shutdown (exit code %d).", code)
					if err := p.Shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()
				code = runPipeline(p.AppCtx, p.Runner, p.Stages)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

func runPipeline(ctx context.Context, runner *pipeline.Runner, stages []string) int {
	run, err := runner.Run(ctx, stages)
	if run == nil {
		logger.Errorf("Pipeline did not start: %v", err)
		return 1
	}
	if err != nil {
		logger.Errorf("Pipeline run %s finished with errors: %v", run.ID, err)
	}
	for _, se := range run.StageExecutions {
		logger.Infof("  %-18s %-9s read=%d written=%d %s", se.StageName, se.ExitStatus, se.ReadCount, se.WriteCount, se.Message)
	}
	logger.Infof("Pipeline run %s: %s", run.ID, run.ExitStatus)
	if run.ExitStatus == model.ExitStatusUnknown {
		return 1
	}
	return run.ExitStatus.ExitCode()
}

package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/carbonlake/internal/layout"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
	"github.com/tigerroll/carbonlake/pkg/lake/upsert"
)

const module = "Transform"

// Stage rebuilds the silver tables from bronze with full overwrites.
type Stage struct {
	store    upsert.Store
	tables   layout.Tables
	aliases  []string
	recorder metrics.MetricRecorder
	now      func() time.Time
}

// Option configures a Stage.
type Option func(*Stage)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Stage) { s.now = now }
}

// NewStage creates a Stage. aliases name the primary factor column.
func NewStage(store upsert.Store, tables layout.Tables, aliases []string, recorder metrics.MetricRecorder, opts ...Option) *Stage {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	s := &Stage{store: store, tables: tables, aliases: aliases, recorder: recorder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunIntensity rebuilds silver intensity detail and its daily aggregate.
func (s *Stage) RunIntensity(ctx context.Context) (model.StageOutcome, error) {
	bronze, outcome, ok, err := s.readBronze(ctx, s.tables.BronzeIntensity)
	if !ok {
		return outcome, err
	}

	now := s.now()
	detail := IntensityDetail(bronze, now)
	written, err := s.write(ctx, s.tables.SilverIntensity, detail, layout.SilverIntensityPartitions)
	if err != nil {
		return model.StageOutcome{}, err
	}

	daily := IntensityDaily(detail, now)
	dailyWritten, err := s.write(ctx, s.tables.SilverIntensityDaily, daily, layout.SilverIntensityPartitions)
	if err != nil {
		return model.StageOutcome{}, err
	}

	result := model.Completed(bronze.Len(), written+dailyWritten)
	result.Message = fmt.Sprintf("%d detail rows, %d days", written, dailyWritten)
	return result, nil
}

// RunFactors rebuilds silver factors.
func (s *Stage) RunFactors(ctx context.Context) (model.StageOutcome, error) {
	bronze, outcome, ok, err := s.readBronze(ctx, s.tables.BronzeFactors)
	if !ok {
		return outcome, err
	}

	factors, err := Factors(bronze, s.aliases, s.now())
	if err != nil {
		return model.StageOutcome{}, exception.NewBatchError(module, "factor snapshot could not be transformed", err, false, false)
	}
	written, err := s.write(ctx, s.tables.SilverFactors, factors, nil)
	if err != nil {
		return model.StageOutcome{}, err
	}
	return model.Completed(bronze.Len(), written), nil
}

// readBronze returns ok=false when the stage should stop, either with a
// no-op outcome (missing or empty table) or with err set.
func (s *Stage) readBronze(ctx context.Context, path string) (*frame.Frame, model.StageOutcome, bool, error) {
	if !s.store.Exists(ctx, path) {
		logger.Warnf("%s: bronze table '%s' does not exist yet; nothing to transform.", module, path)
		return nil, model.NoOp("bronze table missing"), false, nil
	}
	bronze, err := s.store.ReadAll(ctx, path)
	if err != nil {
		return nil, model.StageOutcome{}, false, exception.NewBatchError(module, fmt.Sprintf("failed to read '%s'", path), err, false, false)
	}
	if bronze.Empty() {
		logger.Warnf("%s: bronze table '%s' is empty; nothing to transform.", module, path)
		return nil, model.NoOp("bronze table empty"), false, nil
	}
	return bronze, model.StageOutcome{}, true, nil
}

func (s *Stage) write(ctx context.Context, path string, f *frame.Frame, partitionBy []string) (int, error) {
	if f.Empty() {
		logger.Warnf("%s: no rows for '%s'; table left unchanged.", module, path)
		return 0, nil
	}
	commit, err := s.store.Overwrite(ctx, path, f, partitionBy)
	if err != nil {
		return 0, exception.NewBatchError(module, fmt.Sprintf("failed to overwrite '%s'", path), err, false, false)
	}
	s.recorder.RecordRowsWritten(ctx, path, commit.RowsWritten)
	logger.Infof("%s: wrote %d rows to '%s' (version %d, %d files).", module, commit.RowsWritten, path, commit.Version, commit.FilesAdded)
	return commit.RowsWritten, nil
}

// Package report logs summaries of the silver tables and renders figures.
package report

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/carbonlake/internal/layout"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
	"github.com/tigerroll/carbonlake/pkg/lake/frame"
)

const module = "Report"

// TableReader reads silver tables.
type TableReader interface {
	Exists(ctx context.Context, tablePath string) bool
	ReadAll(ctx context.Context, tablePath string) (*frame.Frame, error)
}

// Options tune a Reporter.
type Options struct {
	FiguresDir string
	HeadRows   int
	Dashboard  bool
}

// Reporter is the view stage.
type Reporter struct {
	store     TableReader
	tables    layout.Tables
	describer Describer
	opts      Options
}

// NewReporter creates a Reporter. A nil describer means the sketch summary.
func NewReporter(store TableReader, tables layout.Tables, describer Describer, o Options) *Reporter {
	if describer == nil {
		describer = SketchDescriber{}
	}
	if o.HeadRows <= 0 {
		o.HeadRows = 5
	}
	return &Reporter{store: store, tables: tables, describer: describer, opts: o}
}

// Run logs the silver tables and writes the figures. Each figure whose
// table is empty is skipped with a warning.
func (r *Reporter) Run(ctx context.Context) (model.StageOutcome, error) {
	detail, err := r.load(ctx, r.tables.SilverIntensity)
	if err != nil {
		return model.StageOutcome{}, err
	}
	daily, err := r.load(ctx, r.tables.SilverIntensityDaily)
	if err != nil {
		return model.StageOutcome{}, err
	}
	factors, err := r.load(ctx, r.tables.SilverFactors)
	if err != nil {
		return model.StageOutcome{}, err
	}

	read := detail.Len() + daily.Len() + factors.Len()
	if read == 0 {
		logger.Warnf("%s: every silver table is empty; no report produced.", module)
		return model.NoOp("silver tables empty"), nil
	}

	if !detail.Empty() {
		summary, err := r.describer.Describe(ctx, r.tables.SilverIntensity, "intensity_value", detail)
		if err != nil {
			logger.Warnf("%s: describe of intensity_value failed: %v", module, err)
		} else {
			logger.Infof("%s: intensity_value statistics (%s):\n%s", module, r.describer.Name(), formatSummary("intensity_value", summary))
		}
	}

	if err := os.MkdirAll(r.opts.FiguresDir, 0o755); err != nil {
		return model.StageOutcome{}, exception.NewBatchError(module, fmt.Sprintf("failed to create figures dir '%s'", r.opts.FiguresDir), err, false, false)
	}

	points := dailyMeans(daily)
	counts := levelCounts(detail)
	fuels := fuelFactors(factors)

	var errs *multierror.Error
	written := 0
	emit := func(name string, ok bool, render func() (string, error)) {
		if !ok {
			logger.Warnf("%s: no data for %s; figure skipped.", module, name)
			return
		}
		path, err := render()
		if err != nil {
			errs = multierror.Append(errs, err)
			return
		}
		written++
		logger.Infof("%s: wrote %s.", module, path)
	}

	emit(DailyMeanFigure, len(points) > 0, func() (string, error) { return writeDailyMeanChart(r.opts.FiguresDir, points) })
	emit(LevelDistributionFigure, len(counts) > 0, func() (string, error) { return writeLevelDistributionChart(r.opts.FiguresDir, counts) })
	emit(FactorsFigure, hasPositive(fuels), func() (string, error) { return writeFactorsChart(r.opts.FiguresDir, fuels) })
	if r.opts.Dashboard {
		emit(DashboardFile, true, func() (string, error) { return writeDashboard(r.opts.FiguresDir, points, counts, fuels) })
	}

	if err := errs.ErrorOrNil(); err != nil {
		return model.StageOutcome{}, exception.NewBatchError(module, "figure rendering failed", err, false, false)
	}
	outcome := model.Completed(read, written)
	outcome.Message = fmt.Sprintf("%d figures in %s", written, r.opts.FiguresDir)
	return outcome, nil
}

// load reads a silver table and logs its size and head. A missing table
// reads as empty.
func (r *Reporter) load(ctx context.Context, path string) (*frame.Frame, error) {
	if !r.store.Exists(ctx, path) {
		logger.Warnf("%s: table '%s' does not exist.", module, path)
		return frame.New(), nil
	}
	f, err := r.store.ReadAll(ctx, path)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("failed to read '%s'", path), err, false, false)
	}
	logger.Infof("%s: '%s' has %d rows.", module, path, f.Len())
	if !f.Empty() {
		logger.Infof("%s: head of '%s':\n%s", module, path, f.Head(r.opts.HeadRows).String())
	}
	return f, nil
}

func hasPositive(fuels []fuelValue) bool {
	for _, fv := range fuels {
		if fv.Value > 0 {
			return true
		}
	}
	return false
}

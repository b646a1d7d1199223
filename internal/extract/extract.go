// Package extract pulls the Carbon Intensity feeds into the bronze layer.
package extract

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
	"github.com/tigerroll/carbonlake/pkg/lake/window"
)

const module = "Extractor"

// Source fetches the raw feeds.
type Source interface {
	FetchIntensity(ctx context.Context, from, to time.Time) (*frame.Frame, error)
	FetchFactors(ctx context.Context) (*frame.Frame, error)
}

// Extractor runs the two bronze extractions.
type Extractor struct {
	source   Source
	store    upsert.Store
	merger   *upsert.Merger
	resolver window.Resolver
	tables   layout.Tables
	recorder metrics.MetricRecorder
	now      func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor wires an Extractor. merger must write through store.
func NewExtractor(src Source, store upsert.Store, merger *upsert.Merger, resolver window.Resolver, tables layout.Tables, recorder metrics.MetricRecorder, opts ...Option) *Extractor {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	e := &Extractor{
		source:   src,
		store:    store,
		merger:   merger,
		resolver: resolver,
		tables:   tables,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunIncremental fetches the intervals newer than the stored maximum and
// upserts them into bronze intensity.
func (e *Extractor) RunIncremental(ctx context.Context) (model.StageOutcome, error) {
	path := e.tables.BronzeIntensity

	var maxFrom *time.Time
	if e.store.Exists(ctx, path) {
		existing, err := e.store.ReadAll(ctx, path)
		if err != nil {
			return model.StageOutcome{}, exception.NewBatchError(module, fmt.Sprintf("failed to read '%s'", path), err, false, false)
		}
		maxFrom = window.MaxTimestamp(existing, "from")
	}

	now := e.now().UTC()
	w, ok := e.resolver.Compute(maxFrom, now)
	if !ok {
		latest := "none"
		if maxFrom != nil {
			latest = maxFrom.Format(time.RFC3339)
		}
		logger.Infof("%s: '%s' is up to date (latest interval %s); nothing to fetch.", module, path, latest)
		return model.NoOp("no new window"), nil
	}
	logger.Infof("%s: fetching intensity for window %s to %s.", module, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))

	raw, err := e.timedFetch(ctx, "intensity", func() (*frame.Frame, error) {
		return e.source.FetchIntensity(ctx, w.Start, w.End)
	})
	if err != nil {
		return model.StageOutcome{}, err
	}
	if raw.Empty() {
		logger.Warnf("%s: the source returned no intervals for %s to %s.", module, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
		return model.NoOp("empty source response"), nil
	}

	normalized := NormalizeIntensity(raw, now)
	result, err := e.merger.Upsert(ctx, normalized, path, layout.IntensityKey, layout.BronzeIntensityPartitions)
	if err != nil {
		return model.StageOutcome{}, exception.NewBatchError(module, "bronze intensity upsert failed", err, false, false)
	}
	e.recorder.RecordRowsWritten(ctx, path, result.Written)

	outcome := model.Completed(result.Incoming, result.Written)
	outcome.Message = fmt.Sprintf("%d new intervals, table version %d", result.Inserted(), result.Commit.Version)
	return outcome, nil
}

// RunFullFactors replaces bronze factors with the current catalog.
func (e *Extractor) RunFullFactors(ctx context.Context) (model.StageOutcome, error) {
	path := e.tables.BronzeFactors

	raw, err := e.timedFetch(ctx, "factors", func() (*frame.Frame, error) {
		return e.source.FetchFactors(ctx)
	})
	if err != nil {
		return model.StageOutcome{}, err
	}
	if raw.Empty() {
		logger.Warnf("%s: the source returned no emission factors.", module)
		return model.NoOp("empty source response"), nil
	}

	normalized, err := NormalizeFactors(raw, e.now())
	if err != nil {
		return model.StageOutcome{}, exception.NewBatchError(module, "factor catalog could not be normalized", err, false, false)
	}
	commit, err := e.store.Overwrite(ctx, path, normalized, nil)
	if err != nil {
		return model.StageOutcome{}, exception.NewBatchError(module, fmt.Sprintf("failed to overwrite '%s'", path), err, false, false)
	}
	e.recorder.RecordRowsWritten(ctx, path, commit.RowsWritten)
	logger.Infof("%s: wrote %d factor rows to '%s' (version %d).", module, commit.RowsWritten, path, commit.Version)

	outcome := model.Completed(raw.Len(), commit.RowsWritten)
	outcome.Message = fmt.Sprintf("table version %d", commit.Version)
	return outcome, nil
}

func (e *Extractor) timedFetch(ctx context.Context, endpoint string, fetch func() (*frame.Frame, error)) (*frame.Frame, error) {
	start := time.Now()
	f, err := fetch()
	status := "success"
	if err != nil {
		status = "failure"
	}
	e.recorder.RecordDuration(ctx, "source_fetch", time.Since(start), map[string]string{"endpoint": endpoint, "status": status})
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("%s fetch failed", endpoint), err, false, false)
	}
	return f, nil
}

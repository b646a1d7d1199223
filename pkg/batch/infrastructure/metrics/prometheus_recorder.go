package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	config "github.com/tigerroll/carbonlake/pkg/batch/core/config"
	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/carbonlake/pkg/batch/core/metrics"
	logger "github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
//
// A batch run has no scrape endpoint, so the registry is exported on Flush: written to
// a node_exporter textfile and/or pushed to a Pushgateway, depending on configuration.
type PrometheusRecorder struct {
	registry *prometheus.Registry
	cfg      config.MetricsConfig

	// Run Metrics
	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec
	lastRunTimestamp   *prometheus.GaugeVec

	// Stage Metrics
	stageDurationSeconds *prometheus.HistogramVec
	stageStatusCounter   *prometheus.CounterVec
	stageReadCount       *prometheus.CounterVec
	stageWriteCount      *prometheus.CounterVec

	// Table and operation metrics
	tableRowsWritten         *prometheus.CounterVec
	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder(cfg config.MetricsConfig) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		cfg:      cfg,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carbonlake_run_duration_seconds",
			Help:    "Duration of pipeline runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status", "exit_status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carbonlake_run_status_total",
			Help: "Total number of pipeline runs by status.",
		}, []string{"status"}),
		lastRunTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "carbonlake_last_run_timestamp_seconds",
			Help: "Unix time of the last finished run by exit status.",
		}, []string{"exit_status"}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carbonlake_stage_duration_seconds",
			Help:    "Duration of pipeline stage executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage", "status", "exit_status"}),
		stageStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carbonlake_stage_status_total",
			Help: "Total number of stage executions by status.",
		}, []string{"stage", "status"}),
		stageReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carbonlake_stage_rows_read_total",
			Help: "Total rows read by stage.",
		}, []string{"stage"}),
		stageWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carbonlake_stage_rows_written_total",
			Help: "Total rows written by stage.",
		}, []string{"stage"}),
		tableRowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carbonlake_table_rows_written_total",
			Help: "Total rows committed per lake table.",
		}, []string{"table"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carbonlake_operation_duration_seconds",
			Help:    "Duration of named operations such as source fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name", "status"}),
	}

	registry.MustRegister(
		r.runDurationSeconds,
		r.runStatusCounter,
		r.lastRunTimestamp,
		r.stageDurationSeconds,
		r.stageStatusCounter,
		r.stageReadCount,
		r.stageWriteCount,
		r.tableRowsWritten,
		r.operationDurationSeconds,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordRunStart records the start of a PipelineRun.
func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, run *model.PipelineRun) {
	r.runStatusCounter.WithLabelValues(run.Status.String()).Inc()
	logger.Debugf("Metrics: Run '%s' started.", run.ID)
}

// RecordRunEnd records the end of a PipelineRun.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, run *model.PipelineRun) {
	if run.EndTime == nil {
		return
	}
	duration := run.Duration().Seconds()
	r.runStatusCounter.WithLabelValues(run.Status.String()).Inc()
	r.runDurationSeconds.WithLabelValues(run.Status.String(), run.ExitStatus.String()).Observe(duration)
	r.lastRunTimestamp.WithLabelValues(run.ExitStatus.String()).Set(float64(run.EndTime.Unix()))
	logger.Debugf("Metrics: Run '%s' ended. Duration: %.3fs", run.ID, duration)
}

// RecordStageStart records the start of a StageExecution.
func (r *PrometheusRecorder) RecordStageStart(ctx context.Context, execution *model.StageExecution) {
	r.stageStatusCounter.WithLabelValues(execution.StageName, execution.Status.String()).Inc()
	logger.Debugf("Metrics: Stage '%s' started.", execution.StageName)
}

// RecordStageEnd records the end of a StageExecution.
// ReadCount and WriteCount are final per execution, so they are added once here.
func (r *PrometheusRecorder) RecordStageEnd(ctx context.Context, execution *model.StageExecution) {
	if execution.EndTime == nil {
		return
	}
	duration := execution.Duration().Seconds()
	stage := execution.StageName

	r.stageStatusCounter.WithLabelValues(stage, execution.Status.String()).Inc()
	r.stageDurationSeconds.WithLabelValues(stage, execution.Status.String(), execution.ExitStatus.String()).Observe(duration)
	r.stageReadCount.WithLabelValues(stage).Add(float64(execution.ReadCount))
	r.stageWriteCount.WithLabelValues(stage).Add(float64(execution.WriteCount))

	logger.Debugf("Metrics: Stage '%s' ended. Duration: %.3fs", stage, duration)
}

// RecordRowsWritten records rows committed to a lake table.
func (r *PrometheusRecorder) RecordRowsWritten(ctx context.Context, table string, count int) {
	r.tableRowsWritten.WithLabelValues(table).Add(float64(count))
}

// RecordDuration records the execution time of a specific operation.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	status := tags["status"]
	if status == "" {
		status = "unknown"
	}
	r.operationDurationSeconds.WithLabelValues(name, status).Observe(duration.Seconds())
}

// Flush exports the registry to the configured textfile and Pushgateway.
// With neither configured it does nothing.
func (r *PrometheusRecorder) Flush(ctx context.Context) error {
	var result *multierror.Error

	if path := r.cfg.TextfilePath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to create textfile directory: %w", err))
		} else if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to write metrics textfile %s: %w", path, err))
		} else {
			logger.Infof("Metrics: wrote Prometheus textfile %s.", path)
		}
	}

	if url := r.cfg.PushgatewayURL; url != "" {
		job := r.cfg.JobName
		if job == "" {
			job = "carbonlake"
		}
		if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to push metrics to %s: %w", url, err))
		} else {
			logger.Infof("Metrics: pushed to Pushgateway %s (job: %s).", url, job)
		}
	}

	return result.ErrorOrNil()
}

var (
	_ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
	_ metrics.Flusher        = (*PrometheusRecorder)(nil)
)

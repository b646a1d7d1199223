package sql

import (
	"time"

	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
)

// PipelineRunEntity is the persisted form of model.PipelineRun.
type PipelineRunEntity struct {
	ID          string `gorm:"primaryKey"`
	Stages      string // comma separated, in execution order
	StartTime   time.Time
	EndTime     *time.Time
	Status      model.RunStatus
	ExitStatus  model.ExitStatus
	Failures    model.FailureList
	Version     int
	CreateTime  time.Time
	LastUpdated time.Time
}

func (PipelineRunEntity) TableName() string {
	return "carbonlake_pipeline_run"
}

// StageExecutionEntity is the persisted form of model.StageExecution.
type StageExecutionEntity struct {
	ID          string `gorm:"primaryKey"`
	RunID       string
	StageName   string
	StartTime   time.Time
	EndTime     *time.Time
	Status      model.RunStatus
	ExitStatus  model.ExitStatus
	Failures    model.FailureList
	ReadCount   int
	WriteCount  int
	Message     string
	Version     int
	LastUpdated time.Time
}

func (StageExecutionEntity) TableName() string {
	return "carbonlake_stage_execution"
}

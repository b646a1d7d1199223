package sql

import (
	"strings"

	model "github.com/tigerroll/carbonlake/pkg/batch/core/domain/model"
)

func fromDomainPipelineRun(r *model.PipelineRun) *PipelineRunEntity {
	if r == nil {
		return nil
	}
	return &PipelineRunEntity{
		ID:          r.ID,
		Stages:      strings.Join(r.Stages, ","),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Status:      r.Status,
		ExitStatus:  r.ExitStatus,
		Failures:    r.Failures,
		Version:     r.Version,
		CreateTime:  r.CreateTime,
		LastUpdated: r.LastUpdated,
	}
}

func toDomainPipelineRun(e *PipelineRunEntity) *model.PipelineRun {
	if e == nil {
		return nil
	}
	var stages []string
	if e.Stages != "" {
		stages = strings.Split(e.Stages, ",")
	}
	return &model.PipelineRun{
		ID:              e.ID,
		Stages:          stages,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		Status:          e.Status,
		ExitStatus:      e.ExitStatus,
		Failures:        e.Failures,
		Version:         e.Version,
		CreateTime:      e.CreateTime,
		LastUpdated:     e.LastUpdated,
		StageExecutions: make([]*model.StageExecution, 0),
	}
}

func fromDomainStageExecution(se *model.StageExecution) *StageExecutionEntity {
	if se == nil {
		return nil
	}
	return &StageExecutionEntity{
		ID:          se.ID,
		RunID:       se.RunID,
		StageName:   se.StageName,
		StartTime:   se.StartTime,
		EndTime:     se.EndTime,
		Status:      se.Status,
		ExitStatus:  se.ExitStatus,
		Failures:    se.Failures,
		ReadCount:   se.ReadCount,
		WriteCount:  se.WriteCount,
		Message:     se.Message,
		Version:     se.Version,
		LastUpdated: se.LastUpdated,
	}
}

func toDomainStageExecution(e *StageExecutionEntity) *model.StageExecution {
	if e == nil {
		return nil
	}
	return &model.StageExecution{
		ID:          e.ID,
		RunID:       e.RunID,
		StageName:   e.StageName,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Status:      e.Status,
		ExitStatus:  e.ExitStatus,
		Failures:    e.Failures,
		ReadCount:   e.ReadCount,
		WriteCount:  e.WriteCount,
		Message:     e.Message,
		Version:     e.Version,
		LastUpdated: e.LastUpdated,
	}
}

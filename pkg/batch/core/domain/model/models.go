package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/carbonlake/pkg/batch/support/util/exception"
	"github.com/tigerroll/carbonlake/pkg/batch/support/util/logger"
)

// RunStatus represents the lifecycle state of a pipeline run or one of its stages.
type RunStatus string

const (
	StatusStarting  RunStatus = "STARTING"
	StatusStarted   RunStatus = "STARTED"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// IsFinished reports whether s is terminal.
func (s RunStatus) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExitStatus describes how a finished run or stage ended.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	// ExitStatusNoOp marks a stage that finished without writing anything,
	// e.g. an empty fetch or a window that has not opened yet.
	ExitStatusNoOp   ExitStatus = "NOOP"
	ExitStatusFailed ExitStatus = "FAILED"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// ExitCode maps an exit status to a process exit code.
func (s ExitStatus) ExitCode() int {
	switch s {
	case ExitStatusCompleted, ExitStatusNoOp:
		return 0
	default:
		return 1
	}
}

// FailureList holds a list of error messages.
type FailureList []string

// Value implements the `driver.Valuer` interface, converting FailureList to a JSON string.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to FailureList.
func (fl *FailureList) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	if len(b) == 0 {
		*fl = make(FailureList, 0)
		return nil
	}
	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}

// add appends the message of err unless an identical message is already present.
func (fl *FailureList) add(owner string, err error) bool {
	if err == nil {
		return false
	}
	msg := exception.ExtractErrorMessage(err)
	for _, existing := range *fl {
		if existing == msg {
			logger.Debugf("Skipped adding duplicate error '%s' to %s.", msg, owner)
			return false
		}
	}
	*fl = append(*fl, msg)
	return true
}

// StageOutcome is what a stage reports back to the runner.
type StageOutcome struct {
	ExitStatus ExitStatus
	ReadCount  int
	WriteCount int
	// Message is a short human readable summary, e.g. the reason for a no-op.
	Message string
}

// Completed returns an outcome for a stage that wrote data.
func Completed(read, written int) StageOutcome {
	return StageOutcome{ExitStatus: ExitStatusCompleted, ReadCount: read, WriteCount: written}
}

// NoOp returns an outcome for a stage that had nothing to do.
func NoOp(reason string) StageOutcome {
	return StageOutcome{ExitStatus: ExitStatusNoOp, Message: reason}
}

// PipelineRun is one invocation of the binary.
type PipelineRun struct {
	ID              string
	Stages          []string // Selected stage names in execution order.
	StartTime       time.Time
	EndTime         *time.Time
	Status          RunStatus
	ExitStatus      ExitStatus
	Failures        FailureList
	Version         int
	CreateTime      time.Time
	LastUpdated     time.Time
	StageExecutions []*StageExecution
}

// StageExecution records one stage of a PipelineRun.
type StageExecution struct {
	ID          string
	RunID       string
	StageName   string
	StartTime   time.Time
	EndTime     *time.Time
	Status      RunStatus
	ExitStatus  ExitStatus
	Failures    FailureList
	ReadCount   int
	WriteCount  int
	Message     string
	LastUpdated time.Time
	Version     int
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// NewPipelineRun creates a run for the given stages.
func NewPipelineRun(id string, stages []string) *PipelineRun {
	now := time.Now()
	return &PipelineRun{
		ID:              id,
		Stages:          append([]string(nil), stages...),
		StartTime:       now,
		Status:          StatusStarting,
		ExitStatus:      ExitStatusUnknown,
		Failures:        make(FailureList, 0),
		CreateTime:      now,
		LastUpdated:     now,
		StageExecutions: make([]*StageExecution, 0, len(stages)),
	}
}

// NewStageExecution creates a stage record attached to run.
func NewStageExecution(run *PipelineRun, stageName string) *StageExecution {
	now := time.Now()
	se := &StageExecution{
		ID:          NewID(),
		RunID:       run.ID,
		StageName:   stageName,
		StartTime:   now,
		Status:      StatusStarting,
		ExitStatus:  ExitStatusUnknown,
		Failures:    make(FailureList, 0),
		LastUpdated: now,
	}
	run.StageExecutions = append(run.StageExecutions, se)
	return se
}

func isValidTransition(current, next RunStatus) bool {
	switch current {
	case StatusStarting:
		return next == StatusStarted || next == StatusFailed
	case StatusStarted:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// TransitionTo changes the run status if the transition is allowed.
func (r *PipelineRun) TransitionTo(next RunStatus) error {
	if !isValidTransition(r.Status, next) {
		return fmt.Errorf("PipelineRun (ID: %s): Invalid state transition: %s -> %s", r.ID, r.Status, next)
	}
	r.Status = next
	return nil
}

// MarkAsStarted updates the run status to STARTED.
func (r *PipelineRun) MarkAsStarted() {
	if err := r.TransitionTo(StatusStarted); err != nil {
		logger.Warnf("Could not update PipelineRun (ID: %s) status to STARTED: %v", r.ID, err)
		r.Status = StatusStarted
	}
	r.StartTime = time.Now()
	r.LastUpdated = r.StartTime
}

// MarkAsCompleted updates the run status to COMPLETED with the given exit status.
func (r *PipelineRun) MarkAsCompleted(exit ExitStatus) {
	if err := r.TransitionTo(StatusCompleted); err != nil {
		logger.Warnf("Could not update PipelineRun (ID: %s) status to COMPLETED: %v", r.ID, err)
		r.Status = StatusCompleted
	}
	r.ExitStatus = exit
	r.finish()
}

// MarkAsFailed updates the run status to FAILED and records err.
func (r *PipelineRun) MarkAsFailed(err error) {
	if terr := r.TransitionTo(StatusFailed); terr != nil {
		logger.Warnf("Could not update PipelineRun (ID: %s) status to FAILED: %v", r.ID, terr)
		r.Status = StatusFailed
	}
	r.ExitStatus = ExitStatusFailed
	r.AddFailureException(err)
	r.finish()
}

func (r *PipelineRun) finish() {
	now := time.Now()
	r.EndTime = &now
	r.LastUpdated = now
}

// AddFailureException adds error information to the run, skipping duplicates.
func (r *PipelineRun) AddFailureException(err error) {
	if r.Failures.add("PipelineRun "+r.ID, err) {
		r.LastUpdated = time.Now()
	}
}

// Duration returns the elapsed time of the run, or zero when it has not finished.
func (r *PipelineRun) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// TransitionTo changes the stage status if the transition is allowed.
func (se *StageExecution) TransitionTo(next RunStatus) error {
	if !isValidTransition(se.Status, next) {
		return fmt.Errorf("StageExecution (ID: %s): Invalid state transition: %s -> %s", se.ID, se.Status, next)
	}
	se.Status = next
	return nil
}

// MarkAsStarted updates the stage status to STARTED.
func (se *StageExecution) MarkAsStarted() {
	if err := se.TransitionTo(StatusStarted); err != nil {
		logger.Warnf("Could not update StageExecution (ID: %s) status to STARTED: %v", se.ID, err)
		se.Status = StatusStarted
	}
	se.StartTime = time.Now()
	se.LastUpdated = se.StartTime
}

// MarkAsCompleted records the stage outcome and sets the status to COMPLETED.
func (se *StageExecution) MarkAsCompleted(outcome StageOutcome) {
	if err := se.TransitionTo(StatusCompleted); err != nil {
		logger.Warnf("Could not update StageExecution (ID: %s) status to COMPLETED: %v", se.ID, err)
		se.Status = StatusCompleted
	}
	se.ExitStatus = outcome.ExitStatus
	if se.ExitStatus == "" || se.ExitStatus == ExitStatusUnknown {
		se.ExitStatus = ExitStatusCompleted
	}
	se.ReadCount = outcome.ReadCount
	se.WriteCount = outcome.WriteCount
	se.Message = outcome.Message
	se.finish()
}

// MarkAsFailed sets the status to FAILED and records err.
func (se *StageExecution) MarkAsFailed(err error) {
	if terr := se.TransitionTo(StatusFailed); terr != nil {
		logger.Warnf("Could not update StageExecution (ID: %s) status to FAILED: %v", se.ID, terr)
		se.Status = StatusFailed
	}
	se.ExitStatus = ExitStatusFailed
	se.AddFailureException(err)
	se.finish()
}

func (se *StageExecution) finish() {
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

// AddFailureException adds error information to the stage, skipping duplicates.
func (se *StageExecution) AddFailureException(err error) {
	if se.Failures.add("StageExecution "+se.ID, err) {
		se.LastUpdated = time.Now()
	}
}

// Duration returns the elapsed time of the stage, or zero when it has not finished.
func (se *StageExecution) Duration() time.Duration {
	if se.EndTime == nil {
		return 0
	}
	return se.EndTime.Sub(se.StartTime)
}

// Package runtime drives extracted steps through the precondition /
// execute / postcondition state machine.
package runtime

import (
	"time"
)

// Status is the terminal state of a step within a run.
type Status string

const (
	StatusRan     Status = "ran"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FailStage distinguishes a body that exited non-zero from a body that
// exited zero without producing the expected observable state.
type FailStage string

const (
	StageExecution     FailStage = "execution"
	StagePostcondition FailStage = "postcondition"
)

// StepResult is the outcome of driving a single step. Uniform envelope
// for all steps, written to the trace.
type StepResult struct {
	RunID        string        `json:"run_id"`
	StepID       string        `json:"step_id"`
	Source       string        `json:"source"`
	StepIndex    int           `json:"step_index"`
	Status       Status        `json:"status"`
	Stage        FailStage     `json:"stage,omitempty"` // set when Status == failed
	Reason       string        `json:"reason,omitempty"`
	Observations []string      `json:"observations,omitempty"`
	ExitCode     int           `json:"exit_code"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Duration     time.Duration `json:"duration"`
}

// RunSummary counts step results by status. A nonzero Failed count
// makes the whole run report failure.
type RunSummary struct {
	Total   int `json:"total" yaml:"total"`
	Ran     int `json:"ran" yaml:"ran"`
	Skipped int `json:"skipped" yaml:"skipped"`
	Failed  int `json:"failed" yaml:"failed"`
}

// RunManifest records the complete metadata for an engine run. Written
// as run.yaml when the run ends, success or not.
type RunManifest struct {
	RunID     string     `yaml:"run_id"`
	GuidesDir string     `yaml:"guides_dir"`
	Forced    bool       `yaml:"forced"`
	StartedAt string     `yaml:"started_at"`
	EndedAt   string     `yaml:"ended_at"`
	Summary   RunSummary `yaml:"summary"`
	FailedAt  string     `yaml:"failed_at,omitempty"` // step id of the first failure
}

// TraceEvent wraps a StepResult for JSONL trace output.
type TraceEvent struct {
	Type      string      `json:"type"` // step_result
	Timestamp time.Time   `json:"timestamp"`
	RunID     string      `json:"run_id"`
	Result    *StepResult `json:"result"`
}

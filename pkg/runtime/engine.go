package runtime

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sbomer/docstep/pkg/checks"
	"github.com/sbomer/docstep/pkg/envstore"
	"github.com/sbomer/docstep/pkg/extract"
	"github.com/sbomer/docstep/pkg/providers"
)

// GenerateRunID creates a run ID in format YYYYMMDDTHHmmss-xxxx.
func GenerateRunID() string {
	ts := time.Now().Format("20060102T150405")
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}

// Engine drives each extracted step through the check → (skip | run →
// re-check) → result state machine, updating the environment store and
// aggregating outcomes. Execution is strictly sequential and halts at
// the first failure.
type Engine struct {
	Steps    *extract.Registry
	Checks   *checks.Registry
	Env      *envstore.Store
	Executor providers.CommandExecutor

	Root      string          // working directory for step bodies
	Force     bool            // bypass preconditions, postconditions still apply
	Skip      map[string]bool // force-skipped step ids (no check invoked)
	RemoteEnv bool            // pass only store exports, not the process env

	Trace   *TraceWriter
	BaseDir string // .docstep/runs/<run_id>/
	RunID   string

	Out io.Writer // console output; defaults to os.Stdout

	startedAt time.Time
	summary   RunSummary
	failedAt  string
}

// NewEngine creates an engine with a fresh run directory and trace.
func NewEngine(steps *extract.Registry, reg *checks.Registry, store *envstore.Store, executor providers.CommandExecutor, stateDir string) (*Engine, error) {
	runID := GenerateRunID()
	baseDir := filepath.Join(stateDir, "runs", runID)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	trace, err := NewTraceWriter(filepath.Join(baseDir, "trace.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("create trace writer: %w", err)
	}

	return &Engine{
		Steps:    steps,
		Checks:   reg,
		Env:      store,
		Executor: executor,
		Skip:     make(map[string]bool),
		Trace:    trace,
		BaseDir:  baseDir,
		RunID:    runID,
	}, nil
}

// Run executes every registered step in order. The returned summary is
// valid even when err is non-nil; err reports the first failure.
func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	if e.Trace != nil {
		defer e.Trace.Close()
	}
	e.startedAt = time.Now()
	defer e.WriteManifest()

	steps := e.Steps.List()
	for i, step := range steps {
		fmt.Fprintf(e.out(), "\n%s Step %d/%d: %s %s\n",
			styleRunning.Render(glyphRunning), i+1, len(steps),
			step.ID, styleDim.Render("("+step.Source+")"))

		// Exports are recorded before the skip/run decision so a step
		// that is skipped still advertises its variables.
		if _, err := e.Env.RecordBody(step.Body); err != nil {
			return e.summary, fmt.Errorf("record exports for step %q: %w", step.ID, err)
		}

		result := e.executeStep(ctx, i, step)

		if e.Trace != nil {
			if err := e.Trace.Write(result); err != nil {
				return e.summary, fmt.Errorf("write trace for step %q: %w", step.ID, err)
			}
		}

		e.summary.Total++
		switch result.Status {
		case StatusSkipped:
			e.summary.Skipped++
			fmt.Fprintf(e.out(), "  %s %s\n", styleSkipped.Render(glyphSkipped), styleSkipped.Render(result.Reason))
			e.printObservations(result.Observations)
		case StatusRan:
			e.summary.Ran++
			fmt.Fprintf(e.out(), "  %s %s\n", styleRan.Render(glyphRan), "done")
			e.printObservations(result.Observations)
		case StatusFailed:
			e.summary.Failed++
			e.failedAt = step.ID
			fmt.Fprintf(e.out(), "  %s step %q failed (%s): %s\n",
				styleFailed.Render(glyphFailed), step.ID, result.Stage, result.Reason)
			e.printObservations(result.Observations)
			return e.summary, fmt.Errorf("step %q failed (%s): %s", step.ID, result.Stage, result.Reason)
		}
	}

	fmt.Fprintf(e.out(), "\n%s %d ran, %d skipped, %d total\n",
		styleRan.Render(glyphRan), e.summary.Ran, e.summary.Skipped, e.summary.Total)
	return e.summary, nil
}

// executeStep drives one step through the state machine.
func (e *Engine) executeStep(ctx context.Context, index int, step extract.Step) *StepResult {
	start := time.Now()
	result := &StepResult{
		RunID:     e.RunID,
		StepID:    step.ID,
		Source:    step.Source,
		StepIndex: index,
		StartedAt: start,
	}
	defer func() {
		result.EndedAt = time.Now()
		result.Duration = result.EndedAt.Sub(start)
	}()

	if e.Skip[step.ID] {
		result.Status = StatusSkipped
		result.Reason = "skipped by request"
		return result
	}

	env := e.Env.Materialize()
	hasCheck := e.Checks.Has(step.ID)

	if hasCheck && !e.Force {
		res := e.Checks.Run(ctx, step.ID, env)
		result.Observations = res.Observations
		if res.Satisfied {
			result.Status = StatusSkipped
			result.Reason = "already satisfied"
			return result
		}
		if res.Reason != "" {
			fmt.Fprintf(e.out(), "  %s %s\n", styleDim.Render(glyphNote), styleDim.Render("needs run: "+res.Reason))
		}
	}

	cmdRes, err := e.Executor.Execute(ctx, step.Body, e.environ(), e.Root)
	if err != nil {
		result.Status = StatusFailed
		result.Stage = StageExecution
		result.Reason = err.Error()
		return result
	}
	result.ExitCode = cmdRes.ExitCode
	if cmdRes.ExitCode != 0 {
		result.Status = StatusFailed
		result.Stage = StageExecution
		result.Reason = fmt.Sprintf("body exited %d", cmdRes.ExitCode)
		return result
	}

	// Postcondition re-validation: the body succeeded, now the effect
	// must be observable. Applies in forced mode too.
	if hasCheck {
		res := e.Checks.Run(ctx, step.ID, e.Env.Materialize())
		result.Observations = append(result.Observations, res.Observations...)
		if !res.Satisfied {
			result.Status = StatusFailed
			result.Stage = StagePostcondition
			result.Reason = fmt.Sprintf("effect not observed after run: %s", res.Reason)
			return result
		}
	}

	result.Status = StatusRan
	return result
}

// WriteManifest records run metadata as run.yaml in the run directory.
func (e *Engine) WriteManifest() {
	if e.BaseDir == "" {
		return
	}
	m := RunManifest{
		RunID:     e.RunID,
		GuidesDir: e.Root,
		Forced:    e.Force,
		StartedAt: e.startedAt.UTC().Format(time.RFC3339),
		EndedAt:   time.Now().UTC().Format(time.RFC3339),
		Summary:   e.summary,
		FailedAt:  e.failedAt,
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: marshal run manifest: %v\n", err)
		return
	}
	path := filepath.Join(e.BaseDir, "run.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "warning: write run manifest: %v\n", err)
	}
}

// Summary returns the counts accumulated so far.
func (e *Engine) Summary() RunSummary {
	return e.summary
}

func (e *Engine) environ() []string {
	if e.RemoteEnv {
		return e.Env.Exports()
	}
	return e.Env.Environ()
}

func (e *Engine) printObservations(obs []string) {
	for _, o := range obs {
		fmt.Fprintf(e.out(), "    %s %s\n", styleDim.Render(glyphNote), styleDim.Render(o))
	}
}

func (e *Engine) out() io.Writer {
	if e.Out != nil {
		return e.Out
	}
	return os.Stdout
}

// Package providers defines the CommandExecutor interface and its
// local and remote implementations. The engine treats step bodies as
// opaque shell scripts; providers decide where they run.
package providers

import (
	"context"
	"time"
)

// CommandResult holds the output of a single script execution.
type CommandResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// CommandExecutor evaluates a multi-line shell script as a unit with
// the given environment and working directory, capturing termination
// status. Implementations: ShellExecutor, SSHExecutor.
type CommandExecutor interface {
	Execute(ctx context.Context, script string, env []string, dir string) (*CommandResult, error)
}

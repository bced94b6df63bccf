package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// ShellExecutor runs scripts through a local shell with the script fed
// on stdin. Output is captured and, when Stdout/Stderr are set, also
// streamed so long-running bodies (downloads, builds) stay visible.
type ShellExecutor struct {
	Shell  string    // defaults to bash
	Stdout io.Writer // optional live stream
	Stderr io.Writer // optional live stream
}

// Execute evaluates the script as a unit under `set -e -o pipefail` so
// any failing line terminates the body with a non-zero status.
func (s *ShellExecutor) Execute(ctx context.Context, script string, env []string, dir string) (*CommandResult, error) {
	shell := s.Shell
	if shell == "" {
		shell = "bash"
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, shell, "-s")
	cmd.Stdin = strings.NewReader("set -e -o pipefail\n" + script + "\n")
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if s.Stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdout, s.Stdout)
	}
	if s.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, s.Stderr)
	}

	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("execute script via %q: %w", shell, err)
		}
	}

	return &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

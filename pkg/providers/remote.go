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

// SSHExecutor runs scripts on a remote target by shelling out to the
// ssh binary with `bash -s` reading the script on stdin. The engine's
// materialized environment cannot cross the connection, so it is
// prepended to the script as quoted export lines. Working directory is
// entered the same way.
type SSHExecutor struct {
	Target  string    // user@host
	Options []string  // extra ssh options (-p, -i, -o ...)
	Stdout  io.Writer // optional live stream
	Stderr  io.Writer // optional live stream
}

// Execute evaluates the script on the remote target.
func (s *SSHExecutor) Execute(ctx context.Context, script string, env []string, dir string) (*CommandResult, error) {
	args := append([]string{}, s.Options...)
	args = append(args, s.Target, "bash", "-s")

	start := time.Now()
	cmd := exec.CommandContext(ctx, "ssh", args...)
	cmd.Stdin = strings.NewReader(RemoteScript(script, env, dir))

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
			return nil, fmt.Errorf("execute remote script on %q: %w", s.Target, err)
		}
	}

	return &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// RemoteScript wraps a script with export lines for env and a cd into
// dir, each value single-quoted for the remote shell.
func RemoteScript(script string, env []string, dir string) string {
	var sb strings.Builder
	sb.WriteString("set -e -o pipefail\n")
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		fmt.Fprintf(&sb, "export %s=%s\n", parts[0], ShellQuote(parts[1]))
	}
	if dir != "" {
		fmt.Fprintf(&sb, "cd %s\n", ShellQuote(dir))
	}
	sb.WriteString(script)
	sb.WriteString("\n")
	return sb.String()
}

// ShellQuote single-quotes a value for POSIX shells.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

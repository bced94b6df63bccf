package checks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/sbomer/docstep/pkg/providers"
)

// Expand substitutes $NAME and ${NAME} references in s from env.
// Unknown names expand to empty, matching shell sourcing semantics.
func Expand(s string, env map[string]string) string {
	return os.Expand(s, func(name string) string {
		return env[name]
	})
}

// Probe builds a check that runs a command through the executor and is
// satisfied on exit status zero. $VAR references in the script are
// expanded from the materialized environment before execution. The
// first line of probe output becomes an observation.
func Probe(executor providers.CommandExecutor, script string, describe string) Func {
	return func(ctx context.Context, env map[string]string) (Result, error) {
		expanded := Expand(script, env)
		res, err := executor.Execute(ctx, expanded, environ(env), "")
		if err != nil {
			return Result{}, fmt.Errorf("probe %q: %w", describe, err)
		}
		obs := describe
		if first := firstLine(res.Stdout); first != "" {
			obs = fmt.Sprintf("%s: %s", describe, first)
		}
		if res.ExitCode != 0 {
			return Unsatisfied(fmt.Sprintf("%s (probe exit %d)", describe, res.ExitCode), obs), nil
		}
		return Satisfied(obs), nil
	}
}

// FileExists builds a check that a path (after $VAR expansion) exists.
func FileExists(path string, describe string) Func {
	return func(ctx context.Context, env map[string]string) (Result, error) {
		expanded := Expand(path, env)
		if expanded == "" {
			return Unsatisfied(fmt.Sprintf("%s: path %q expands to empty", describe, path)), nil
		}
		if _, err := os.Stat(expanded); err != nil {
			if os.IsNotExist(err) {
				return Unsatisfied(fmt.Sprintf("%s: %s not found", describe, expanded)), nil
			}
			return Result{}, fmt.Errorf("stat %s: %w", expanded, err)
		}
		return Satisfied(fmt.Sprintf("%s: found %s", describe, expanded)), nil
	}
}

// CommandOnPath builds a check that a tool resolves on PATH.
func CommandOnPath(name string, describe string) Func {
	return func(ctx context.Context, env map[string]string) (Result, error) {
		path, err := exec.LookPath(name)
		if err != nil {
			return Unsatisfied(fmt.Sprintf("%s: %s not on PATH", describe, name)), nil
		}
		return Satisfied(fmt.Sprintf("%s: %s found at %s", describe, name, path)), nil
	}
}

// Expr builds a check from an expr-lang boolean expression over the
// materialized environment, exposed as `env`. Example:
//
//	env.ANDROID_SDK_ROOT != "" && int(env.ANDROID_API ?? "0") >= 21
func Expr(src string, describe string) Func {
	return func(ctx context.Context, env map[string]string) (Result, error) {
		scope := map[string]interface{}{"env": env}
		program, err := expr.Compile(src, expr.Env(scope), expr.AsBool())
		if err != nil {
			return Result{}, fmt.Errorf("compile expression %q: %w", src, err)
		}
		output, err := expr.Run(program, scope)
		if err != nil {
			return Result{}, fmt.Errorf("eval expression %q: %w", src, err)
		}
		ok, _ := output.(bool)
		if !ok {
			return Unsatisfied(fmt.Sprintf("%s (%s is false)", describe, src)), nil
		}
		return Satisfied(describe), nil
	}
}

// environ renders the materialized mapping for probe execution, layered
// over the process environment.
func environ(env map[string]string) []string {
	out := os.Environ()
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

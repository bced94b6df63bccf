// Package checks implements the precondition/postcondition registry.
// A check reports whether a step's effect already holds; the same
// function is re-invoked after the step runs to validate that the
// effect actually materialized. A step with no registered check is an
// action step and always executes.
package checks

import (
	"context"
	"fmt"
	"sort"
)

// Result is the outcome of invoking a check. Observations are
// human-readable assertions ("dotnet found at /usr/bin/dotnet") used
// purely for reporting.
type Result struct {
	Satisfied    bool     `json:"satisfied"`
	Reason       string   `json:"reason,omitempty"`
	Observations []string `json:"observations,omitempty"`
}

// Satisfied builds a satisfied result.
func Satisfied(observations ...string) Result {
	return Result{Satisfied: true, Observations: observations}
}

// Unsatisfied builds an unsatisfied result with the given reason.
func Unsatisfied(reason string, observations ...string) Result {
	return Result{Satisfied: false, Reason: reason, Observations: observations}
}

// Func is a check function. env is the materialized environment store;
// checks may read variables but never mutate ambient state. A check
// that cannot decide returns an error, which the registry reports as
// unsatisfied with the underlying reason.
type Func func(ctx context.Context, env map[string]string) (Result, error)

// Registry is the explicit table from step id to check function, built
// once at startup.
type Registry struct {
	checks map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Func)}
}

// Register binds a check to a step id. Re-registering replaces the
// previous binding.
func (r *Registry) Register(id string, fn Func) {
	r.checks[id] = fn
}

// Has reports whether the step has a registered check.
func (r *Registry) Has(id string) bool {
	_, ok := r.checks[id]
	return ok
}

// IDs returns the registered step ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.checks))
	for id := range r.checks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run invokes the check for the step. A check error is reported as
// unsatisfied, distinct in reason but not in control flow, so the step
// proceeds to execute.
func (r *Registry) Run(ctx context.Context, id string, env map[string]string) Result {
	fn, ok := r.checks[id]
	if !ok {
		return Unsatisfied(fmt.Sprintf("no check registered for %q", id))
	}
	res, err := fn(ctx, env)
	if err != nil {
		return Unsatisfied(fmt.Sprintf("check error: %v", err), res.Observations...)
	}
	return res
}

// All composes checks; satisfied only when every part is. Observations
// and the first unsatisfied reason are aggregated.
func All(fns ...Func) Func {
	return func(ctx context.Context, env map[string]string) (Result, error) {
		combined := Result{Satisfied: true}
		for _, fn := range fns {
			res, err := fn(ctx, env)
			if err != nil {
				return combined, err
			}
			combined.Observations = append(combined.Observations, res.Observations...)
			if !res.Satisfied {
				combined.Satisfied = false
				if combined.Reason == "" {
					combined.Reason = res.Reason
				}
			}
		}
		return combined, nil
	}
}

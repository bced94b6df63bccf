package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sbomer/docstep/pkg/checks"
)

// fakeResource builds a resource whose check is satisfied after the
// action sets done.
func fakeResource(name string, done *bool, acted *int) Resource {
	return Resource{
		Name: name,
		Check: func(ctx context.Context, env map[string]string) (checks.Result, error) {
			if *done {
				return checks.Satisfied(), nil
			}
			return checks.Unsatisfied(name + " absent"), nil
		},
		Act: func(ctx context.Context) error {
			*acted++
			*done = true
			return nil
		},
	}
}

// TestDriverActsOnlyWhenUnsatisfied verifies satisfied resources are
// skipped and unsatisfied ones acted on exactly once.
func TestDriverActsOnlyWhenUnsatisfied(t *testing.T) {
	doneA, doneB := true, false
	actedA, actedB := 0, 0
	d := &Driver{
		Resources: []Resource{
			fakeResource("a", &doneA, &actedA),
			fakeResource("b", &doneB, &actedB),
		},
		Out: &bytes.Buffer{},
	}

	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if actedA != 0 {
		t.Errorf("acted on already-satisfied resource %d times", actedA)
	}
	if actedB != 1 {
		t.Errorf("acted on unsatisfied resource %d times, want 1", actedB)
	}
}

// TestDriverActionFailureHalts verifies a failing action stops the walk
// before later resources.
func TestDriverActionFailureHalts(t *testing.T) {
	laterActed := 0
	laterDone := false
	d := &Driver{
		Resources: []Resource{
			{
				Name: "broken",
				Check: func(ctx context.Context, env map[string]string) (checks.Result, error) {
					return checks.Unsatisfied("down"), nil
				},
				Act: func(ctx context.Context) error {
					return errors.New("provisioning failed")
				},
			},
			fakeResource("later", &laterDone, &laterActed),
		},
		Out: &bytes.Buffer{},
	}

	err := d.Run(context.Background(), nil)
	if err == nil {
		t.Fatalf("Run succeeded, want failure")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("err = %v, want the failing resource named", err)
	}
	if laterActed != 0 {
		t.Errorf("later resource acted after failure")
	}
}

// TestDriverRecheckEnforced verifies an action that reports success
// without producing the state is a hard failure.
func TestDriverRecheckEnforced(t *testing.T) {
	d := &Driver{
		Resources: []Resource{
			{
				Name: "phantom",
				Check: func(ctx context.Context, env map[string]string) (checks.Result, error) {
					return checks.Unsatisfied("never appears"), nil
				},
				Act: func(ctx context.Context) error {
					return nil // claims success, state unchanged
				},
			},
		},
		Out: &bytes.Buffer{},
	}

	err := d.Run(context.Background(), nil)
	if err == nil {
		t.Fatalf("Run succeeded, want re-check failure")
	}
	if !strings.Contains(err.Error(), "state not observed") {
		t.Errorf("err = %v, want state-not-observed failure", err)
	}
}

// TestDriverCheckErrorTreatedAsUnsatisfied verifies a check error does
// not abort the walk; the action gets its chance.
func TestDriverCheckErrorTreatedAsUnsatisfied(t *testing.T) {
	acted := 0
	healthy := false
	d := &Driver{
		Resources: []Resource{
			{
				Name: "flaky-check",
				Check: func(ctx context.Context, env map[string]string) (checks.Result, error) {
					if healthy {
						return checks.Satisfied(), nil
					}
					return checks.Result{}, errors.New("probe timeout")
				},
				Act: func(ctx context.Context) error {
					acted++
					healthy = true
					return nil
				},
			},
		},
		Out: &bytes.Buffer{},
	}

	if err := d.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if acted != 1 {
		t.Errorf("acted %d times, want 1", acted)
	}
}

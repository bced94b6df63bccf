// Package lifecycle applies the engine's check → act → validate triple
// to coarse external resources. Unlike document steps the resource list
// is fixed and ordered in code, and a destroy path exists to force
// recreation.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/sbomer/docstep/pkg/checks"
)

// Resource is one idempotently-managed external resource.
type Resource struct {
	Name  string
	Check checks.Func
	Act   func(ctx context.Context) error
}

// Driver walks a fixed ordered resource list. Each resource is checked
// first; a satisfied check skips the action. After acting, the check is
// re-invoked — an effect that still is not observable is a hard
// failure, same as the step executor's postcondition rule.
type Driver struct {
	Resources []Resource
	Out       io.Writer
}

var (
	driverOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	driverFail = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	driverDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Run drives every resource in order, fail-fast.
func (d *Driver) Run(ctx context.Context, env map[string]string) error {
	for _, res := range d.Resources {
		fmt.Fprintf(d.out(), "▶ %s\n", res.Name)

		cr, err := res.Check(ctx, env)
		if err != nil {
			// A check error means unsatisfied, with the reason kept.
			cr = checks.Unsatisfied(fmt.Sprintf("check error: %v", err), cr.Observations...)
		}
		for _, o := range cr.Observations {
			fmt.Fprintf(d.out(), "    %s\n", driverDim.Render("· "+o))
		}
		if cr.Satisfied {
			fmt.Fprintf(d.out(), "  %s\n", driverDim.Render("⊘ already satisfied"))
			continue
		}
		if cr.Reason != "" {
			fmt.Fprintf(d.out(), "    %s\n", driverDim.Render("· needs action: "+cr.Reason))
		}

		if err := res.Act(ctx); err != nil {
			fmt.Fprintf(d.out(), "  %s\n", driverFail.Render("✗ "+err.Error()))
			return fmt.Errorf("resource %q: %w", res.Name, err)
		}

		cr, err = res.Check(ctx, env)
		if err != nil {
			return fmt.Errorf("resource %q: re-check: %w", res.Name, err)
		}
		if !cr.Satisfied {
			fmt.Fprintf(d.out(), "  %s\n", driverFail.Render("✗ still unsatisfied after action"))
			return fmt.Errorf("resource %q: action succeeded but state not observed: %s", res.Name, cr.Reason)
		}
		fmt.Fprintf(d.out(), "  %s\n", driverOK.Render("✓ done"))
	}
	return nil
}

func (d *Driver) out() io.Writer {
	if d.Out != nil {
		return d.Out
	}
	return os.Stdout
}

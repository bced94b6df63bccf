package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show [step-id]",
	Short: "Render one extracted step's command body",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, cfgDir, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := scanGuides(cfg, cfgDir)
	if err != nil {
		return err
	}

	step, ok := reg.Lookup(args[0])
	if !ok {
		return fmt.Errorf("no step %q in this guide set", args[0])
	}

	md := fmt.Sprintf("# %s\n\n`%s:%d`\n\n```sh\n%s\n```\n",
		step.ID, step.Source, step.Line, step.Body)

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Fall back to the raw markdown if glamour is unavailable.
		fmt.Print(md)
		return nil
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return nil
	}
	fmt.Print(out)
	return nil
}

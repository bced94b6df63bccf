// Command docstep executes the identified command steps embedded in a
// set of markdown guides, skipping any step whose effect already holds.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	runewidth "github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/sbomer/docstep/pkg/config"
	"github.com/sbomer/docstep/pkg/envstore"
	"github.com/sbomer/docstep/pkg/extract"
	"github.com/sbomer/docstep/pkg/providers"
	"github.com/sbomer/docstep/pkg/runtime"
)

// Version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "docstep",
	Short:   "Documentation-driven execution engine",
	Long:    "docstep — extract identified command steps from markdown guides and replay them idempotently against a durable environment store.",
	Version: version,
	RunE:    runRun, // bare `docstep` is an incremental run
}

// --- run ---

var (
	flagConfig        string
	flagGuides        string
	flagForce         bool
	flagSkip          []string
	flagEnvFile       string
	flagLocalOverride string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the guide steps incrementally (default)",
	Long: `Extract every identified step from the guide set and drive each one
through its precondition: steps whose effect already holds are skipped,
the rest execute in document order. The run halts at the first failure.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, cfgDir, err := loadConfig()
	if err != nil {
		return err
	}

	reg, err := scanGuides(cfg, cfgDir)
	if err != nil {
		return err
	}
	if reg.Len() == 0 {
		fmt.Println("no steps found in guide set")
		return nil
	}

	store, err := openStore(cfg, cfgDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if flagForce {
		if err := store.Reset(); err != nil {
			return err
		}
	}

	skip := make(map[string]bool)
	for _, id := range splitIDs(flagSkip) {
		skip[id] = true
	}

	if flagEnvFile != "" {
		if err := store.ImportFile(flagEnvFile); err != nil {
			return err
		}
	}
	if flagLocalOverride != "" {
		ov, err := config.LoadOverride(flagLocalOverride)
		if err != nil {
			return err
		}
		for _, line := range ov.Env {
			if err := store.Append(line); err != nil {
				return err
			}
		}
		for _, id := range ov.Skip {
			skip[id] = true
		}
	}

	executor := &providers.ShellExecutor{Stdout: os.Stdout, Stderr: os.Stderr}
	table, err := cfg.BuildChecks(executor)
	if err != nil {
		return err
	}

	engine, err := runtime.NewEngine(reg, table, store, executor, stateDir(cfgDir))
	if err != nil {
		return err
	}
	engine.Root = cfgDir
	engine.Force = flagForce
	engine.Skip = skip

	summary, err := engine.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nrun failed: %d ran, %d skipped, %d failed\n",
			summary.Ran, summary.Skipped, summary.Failed)
		return err
	}
	return nil
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the extracted steps in execution order, without executing",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, cfgDir, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := scanGuides(cfg, cfgDir)
	if err != nil {
		return err
	}

	checked := make(map[string]bool)
	for _, def := range cfg.Checks {
		checked[def.Step] = true
	}

	fmt.Print(formatStepList(reg.List(), checked))
	return nil
}

// formatStepList renders the ordered step table with runewidth-aware
// column alignment.
func formatStepList(steps []extract.Step, checked map[string]bool) string {
	idWidth := 0
	for _, s := range steps {
		if w := runewidth.StringWidth(s.ID); w > idWidth {
			idWidth = w
		}
	}

	var sb strings.Builder
	for i, s := range steps {
		annotation := "run-always"
		if checked[s.ID] {
			annotation = "checked"
		}
		fmt.Fprintf(&sb, "%2d. %s  %-10s  %s:%d\n",
			i+1, runewidth.FillRight(s.ID, idWidth), annotation, s.Source, s.Line)
	}
	return sb.String()
}

// --- shared helpers ---

// loadConfig resolves the guide-set config. An explicit --config must
// validate; otherwise guides.yaml is used when present, and a default
// config (scan the current directory) when not.
func loadConfig() (*config.Config, string, error) {
	path := flagConfig
	if path == "" {
		if _, err := os.Stat("guides.yaml"); err == nil {
			path = "guides.yaml"
		} else {
			cfg := &config.Config{
				APIVersion: "docstep/v1",
				Meta:       config.Meta{Name: "guides"},
			}
			// Defaults are applied by Load; mirror them here.
			cfg.Guides.Root = "."
			cfg.Env.File = config.DefaultStateDir + "/env.sh"
			return cfg, ".", nil
		}
	}

	cfg, errs := config.ValidateFile(path)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  ✗ %s\n", e.Error())
		}
		return nil, "", fmt.Errorf("config validation failed: %d error(s)", len(errs))
	}
	return cfg, filepath.Dir(path), nil
}

// scanGuides extracts the registry per the config's include list or by
// walking the guides root. --guides overrides the configured root.
func scanGuides(cfg *config.Config, cfgDir string) (*extract.Registry, error) {
	root := filepath.Join(cfgDir, cfg.Guides.Root)
	if flagGuides != "" {
		root = flagGuides
	}
	if len(cfg.Guides.Include) > 0 {
		paths := make([]string, 0, len(cfg.Guides.Include))
		for _, p := range cfg.Guides.Include {
			paths = append(paths, filepath.Join(root, p))
		}
		return extract.ScanFiles(root, paths)
	}
	return extract.ScanDir(root)
}

func openStore(cfg *config.Config, cfgDir string) (*envstore.Store, error) {
	path := cfg.Env.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfgDir, path)
	}
	return envstore.Load(path)
}

func stateDir(cfgDir string) string {
	return filepath.Join(cfgDir, config.DefaultStateDir)
}

func splitIDs(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, id := range strings.Split(v, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		cmd.Flags().BoolVar(&flagForce, "force", false, "reset the environment store and run every step unconditionally")
		cmd.Flags().StringSliceVar(&flagSkip, "skip", nil, "step ids to force-skip without invoking their checks")
		cmd.Flags().StringVar(&flagEnvFile, "env-file", "", "environment overlay appended to the store before running")
		cmd.Flags().StringVar(&flagLocalOverride, "local-override", "", "local toolchain override file (extra env lines + implicit skips)")
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "guide-set config file (default guides.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&flagGuides, "guides", "", "guides directory, overriding the configured root")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(mcpCmd)
}

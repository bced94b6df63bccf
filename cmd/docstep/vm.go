package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/sbomer/docstep/pkg/config"
	"github.com/sbomer/docstep/pkg/lifecycle"
	"github.com/sbomer/docstep/pkg/providers"
	"github.com/sbomer/docstep/pkg/runtime"
)

// --- vm ---

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Manage the development VM the guides run against",
}

var vmUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Idempotently bring the VM to a reachable state",
	Args:  cobra.NoArgs,
	RunE:  runVMUp,
}

var vmStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report each VM resource without acting",
	Args:  cobra.NoArgs,
	RunE:  runVMStatus,
}

var (
	vmDestroyYes bool

	vmDestroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "Tear the VM down so the next up recreates it",
		Args:  cobra.NoArgs,
		RunE:  runVMDestroy,
	}
)

var vmRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Bring the VM up, then execute the guide steps inside it",
	Args:  cobra.NoArgs,
	RunE:  runVMRun,
}

// loadVM builds the VM manager from config, failing when the guide set
// declares no vm block.
func loadVM() (*lifecycle.VM, *config.Config, string, error) {
	cfg, cfgDir, err := loadConfig()
	if err != nil {
		return nil, nil, "", err
	}
	if cfg.VM == nil {
		return nil, nil, "", fmt.Errorf("no vm block in guide-set config")
	}
	executor := &providers.ShellExecutor{Stdout: os.Stdout, Stderr: os.Stderr}
	return lifecycle.NewVM(cfg.VM, executor, stateDir(cfgDir)), cfg, cfgDir, nil
}

func runVMUp(cmd *cobra.Command, args []string) error {
	vm, _, _, err := loadVM()
	if err != nil {
		return err
	}
	driver := &lifecycle.Driver{Resources: vm.Resources()}
	return driver.Run(context.Background(), nil)
}

func runVMStatus(cmd *cobra.Command, args []string) error {
	vm, _, _, err := loadVM()
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, res := range vm.Resources() {
		cr, err := res.Check(ctx, nil)
		switch {
		case err != nil:
			fmt.Printf("? %s: %v\n", res.Name, err)
		case cr.Satisfied:
			fmt.Printf("✓ %s\n", res.Name)
		default:
			fmt.Printf("✗ %s: %s\n", res.Name, cr.Reason)
		}
	}
	return nil
}

func runVMDestroy(cmd *cobra.Command, args []string) error {
	vm, _, _, err := loadVM()
	if err != nil {
		return err
	}
	if !vmDestroyYes {
		ok, err := confirm(fmt.Sprintf("destroy VM %q and its storage? [y/N] ", vm.Config.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}
	return vm.Destroy(context.Background())
}

// runVMRun drives the VM resources, then hands off to a nested step
// executor targeting the guest over ssh.
func runVMRun(cmd *cobra.Command, args []string) error {
	vm, cfg, cfgDir, err := loadVM()
	if err != nil {
		return err
	}
	ctx := context.Background()

	driver := &lifecycle.Driver{Resources: vm.Resources()}
	if err := driver.Run(ctx, nil); err != nil {
		return err
	}

	target, err := vm.Target()
	if err != nil {
		return err
	}
	fmt.Printf("\n→ Executing guide steps on %s\n", target)

	reg, err := scanGuides(cfg, cfgDir)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, cfgDir)
	if err != nil {
		return err
	}
	defer store.Close()

	remote := &providers.SSHExecutor{
		Target:  target,
		Options: vm.SSHOptions(),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	table, err := cfg.BuildChecks(remote)
	if err != nil {
		return err
	}

	engine, err := runtime.NewEngine(reg, table, store, remote, stateDir(cfgDir))
	if err != nil {
		return err
	}
	engine.Root = cfg.VM.Workdir
	engine.RemoteEnv = true

	_, err = engine.Run(ctx)
	return err
}

// confirm asks a yes/no question on the terminal.
func confirm(prompt string) (bool, error) {
	rl, err := readline.New(prompt)
	if err != nil {
		return false, fmt.Errorf("open prompt: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		return false, nil // ^C / EOF means no
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes", nil
}

func init() {
	vmDestroyCmd.Flags().BoolVar(&vmDestroyYes, "yes", false, "skip the confirmation prompt")
	vmCmd.AddCommand(vmUpCmd)
	vmCmd.AddCommand(vmStatusCmd)
	vmCmd.AddCommand(vmDestroyCmd)
	vmCmd.AddCommand(vmRunCmd)
}

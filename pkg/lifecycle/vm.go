package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sbomer/docstep/pkg/checks"
	"github.com/sbomer/docstep/pkg/config"
	"github.com/sbomer/docstep/pkg/providers"
)

// VM manages a libvirt development machine through opaque shell
// commands (curl, qemu-img, cloud-localds, virsh, ssh). The engine
// never interprets these; they are step bodies in all but name.
type VM struct {
	Config   *config.VMConfig
	Executor providers.CommandExecutor
	Dir      string // image/seed cache, .docstep/vm

	address string // discovered or configured ssh host
}

// NewVM builds a VM manager rooted at stateDir.
func NewVM(cfg *config.VMConfig, executor providers.CommandExecutor, stateDir string) *VM {
	return &VM{
		Config:   cfg,
		Executor: executor,
		Dir:      filepath.Join(stateDir, "vm"),
		address:  cfg.Host,
	}
}

// Resources returns the fixed ordered resource list for the driver.
func (v *VM) Resources() []Resource {
	return []Resource{
		{
			Name:  "base image cached",
			Check: checks.FileExists(v.baseImagePath(), "base image"),
			Act:   v.fetchBaseImage,
		},
		{
			Name:  "cloud-init seed built",
			Check: checks.FileExists(v.seedPath(), "seed image"),
			Act:   v.buildSeed,
		},
		{
			Name:  "domain defined",
			Check: v.domainDefined,
			Act:   v.defineDomain,
		},
		{
			Name:  "domain running",
			Check: v.domainRunning,
			Act:   v.startDomain,
		},
		{
			Name:  "ssh reachable",
			Check: v.reachable,
			Act:   v.waitReachable,
		},
	}
}

// Destroy tears the domain and its storage down so the next drive
// recreates everything.
func (v *VM) Destroy(ctx context.Context) error {
	script := fmt.Sprintf(
		"virsh destroy %[1]s >/dev/null 2>&1 || true\n"+
			"virsh undefine %[1]s --nvram >/dev/null 2>&1 || virsh undefine %[1]s >/dev/null 2>&1 || true\n"+
			"rm -f %[2]s %[3]s\n",
		providers.ShellQuote(v.Config.Name),
		providers.ShellQuote(v.diskPath()),
		providers.ShellQuote(v.seedPath()))
	res, err := v.Executor.Execute(ctx, script, nil, "")
	if err != nil {
		return fmt.Errorf("destroy vm: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("destroy vm: exit %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}

// Target returns the ssh target (user@host) for remote step execution.
// The address must be configured or discovered first.
func (v *VM) Target() (string, error) {
	if v.address == "" {
		return "", fmt.Errorf("vm %q has no address: configure vm.host or run the driver first", v.Config.Name)
	}
	return v.Config.User + "@" + v.address, nil
}

// SSHOptions returns the non-interactive ssh options for remote step
// execution, including any configured extras.
func (v *VM) SSHOptions() []string {
	return sshBatchOptions(v.Config.SSHOptions)
}

func (v *VM) baseImagePath() string {
	return filepath.Join(v.Dir, "base.img")
}

func (v *VM) diskPath() string {
	return filepath.Join(v.Dir, v.Config.Name+".qcow2")
}

func (v *VM) seedPath() string {
	return filepath.Join(v.Dir, "seed.iso")
}

func (v *VM) fetchBaseImage(ctx context.Context) error {
	if err := os.MkdirAll(v.Dir, 0755); err != nil {
		return fmt.Errorf("create vm dir: %w", err)
	}
	script := fmt.Sprintf("curl -fSL -o %s %s",
		providers.ShellQuote(v.baseImagePath()),
		providers.ShellQuote(v.Config.Image))
	return v.run(ctx, script, "fetch base image")
}

func (v *VM) buildSeed(ctx context.Context) error {
	if err := os.MkdirAll(v.Dir, 0755); err != nil {
		return fmt.Errorf("create vm dir: %w", err)
	}

	pubkey := ""
	if v.Config.SSHPubkey != "" {
		data, err := os.ReadFile(v.Config.SSHPubkey)
		if err != nil {
			return fmt.Errorf("read ssh pubkey: %w", err)
		}
		pubkey = strings.TrimSpace(string(data))
	}

	userData := cloudInitUserData(v.Config.User, pubkey)
	userDataPath := filepath.Join(v.Dir, "user-data")
	if err := os.WriteFile(userDataPath, []byte(userData), 0644); err != nil {
		return fmt.Errorf("write user-data: %w", err)
	}
	metaData := fmt.Sprintf("instance-id: %s\nlocal-hostname: %s\n", v.Config.Name, v.Config.Name)
	metaDataPath := filepath.Join(v.Dir, "meta-data")
	if err := os.WriteFile(metaDataPath, []byte(metaData), 0644); err != nil {
		return fmt.Errorf("write meta-data: %w", err)
	}

	script := fmt.Sprintf("cloud-localds %s %s %s",
		providers.ShellQuote(v.seedPath()),
		providers.ShellQuote(userDataPath),
		providers.ShellQuote(metaDataPath))
	return v.run(ctx, script, "build cloud-init seed")
}

func (v *VM) domainDefined(ctx context.Context, env map[string]string) (checks.Result, error) {
	res, err := v.Executor.Execute(ctx, "virsh dominfo "+providers.ShellQuote(v.Config.Name), nil, "")
	if err != nil {
		return checks.Result{}, fmt.Errorf("virsh dominfo: %w", err)
	}
	if res.ExitCode != 0 {
		return checks.Unsatisfied(fmt.Sprintf("domain %s not defined", v.Config.Name)), nil
	}
	return checks.Satisfied(fmt.Sprintf("domain %s defined", v.Config.Name)), nil
}

func (v *VM) defineDomain(ctx context.Context) error {
	// The disk overlays the cached base image so recreation is cheap.
	script := fmt.Sprintf(
		"qemu-img create -f qcow2 -F qcow2 -b %s %s %dG\n"+
			"virt-install --import --noautoconsole --name %s"+
			" --vcpus %d --memory %d"+
			" --disk %s,format=qcow2 --disk %s,device=cdrom"+
			" --os-variant generic --network network=default",
		providers.ShellQuote(mustAbs(v.baseImagePath())),
		providers.ShellQuote(v.diskPath()),
		v.Config.DiskGB,
		providers.ShellQuote(v.Config.Name),
		v.Config.CPUs, v.Config.MemoryMB,
		providers.ShellQuote(v.diskPath()),
		providers.ShellQuote(v.seedPath()))
	return v.run(ctx, script, "define domain")
}

func (v *VM) domainRunning(ctx context.Context, env map[string]string) (checks.Result, error) {
	res, err := v.Executor.Execute(ctx, "virsh domstate "+providers.ShellQuote(v.Config.Name), nil, "")
	if err != nil {
		return checks.Result{}, fmt.Errorf("virsh domstate: %w", err)
	}
	state := strings.TrimSpace(string(res.Stdout))
	if res.ExitCode != 0 || state != "running" {
		return checks.Unsatisfied(fmt.Sprintf("domain state %q", state)), nil
	}
	return checks.Satisfied("domain running"), nil
}

func (v *VM) startDomain(ctx context.Context) error {
	return v.run(ctx, "virsh start "+providers.ShellQuote(v.Config.Name), "start domain")
}

// reachable probes the guest once over ssh. Discovery of the guest
// address happens lazily on the first probe.
func (v *VM) reachable(ctx context.Context, env map[string]string) (checks.Result, error) {
	if v.address == "" {
		addr, err := v.discoverAddress(ctx)
		if err != nil {
			return checks.Unsatisfied(err.Error()), nil
		}
		v.address = addr
	}
	target := v.Config.User + "@" + v.address
	ssh := &providers.SSHExecutor{Target: target, Options: sshBatchOptions(v.Config.SSHOptions)}
	res, err := ssh.Execute(ctx, "true", nil, "")
	if err != nil {
		return checks.Unsatisfied(fmt.Sprintf("ssh %s: %v", target, err)), nil
	}
	if res.ExitCode != 0 {
		return checks.Unsatisfied(fmt.Sprintf("ssh %s: exit %d", target, res.ExitCode)), nil
	}
	return checks.Satisfied("reachable at " + target), nil
}

// waitReachable polls with a fixed attempt budget and interval.
// Exceeding the budget is a hard failure, never an infinite wait.
func (v *VM) waitReachable(ctx context.Context) error {
	attempts := v.Config.ReachAttempts
	interval := v.Config.ReachIntervalDuration()
	for i := 1; i <= attempts; i++ {
		res, err := v.reachable(ctx, nil)
		if err == nil && res.Satisfied {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("vm %q not reachable after %d attempts", v.Config.Name, attempts)
}

// leaseRe pulls the ipv4 address out of virsh domifaddr output.
var leaseRe = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})/\d+`)

// discoverAddress reads the guest address from the DHCP lease.
func (v *VM) discoverAddress(ctx context.Context) (string, error) {
	res, err := v.Executor.Execute(ctx, "virsh domifaddr "+providers.ShellQuote(v.Config.Name)+" --source lease", nil, "")
	if err != nil {
		return "", fmt.Errorf("virsh domifaddr: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("virsh domifaddr: exit %d", res.ExitCode)
	}
	m := leaseRe.FindStringSubmatch(string(res.Stdout))
	if m == nil {
		return "", fmt.Errorf("no lease address for domain %q yet", v.Config.Name)
	}
	return m[1], nil
}

func (v *VM) run(ctx context.Context, script, what string) error {
	res, err := v.Executor.Execute(ctx, script, nil, "")
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s: exit %d: %s", what, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return nil
}

// cloudInitUserData renders the minimal first-boot configuration: one
// sudo-capable user with the caller's public key.
func cloudInitUserData(user, pubkey string) string {
	var sb strings.Builder
	sb.WriteString("#cloud-config\n")
	sb.WriteString("users:\n")
	fmt.Fprintf(&sb, "  - name: %s\n", user)
	sb.WriteString("    sudo: ALL=(ALL) NOPASSWD:ALL\n")
	sb.WriteString("    shell: /bin/bash\n")
	if pubkey != "" {
		sb.WriteString("    ssh_authorized_keys:\n")
		fmt.Fprintf(&sb, "      - %s\n", pubkey)
	}
	return sb.String()
}

// sshBatchOptions forces non-interactive ssh for probes and remote
// execution.
func sshBatchOptions(extra []string) []string {
	opts := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", "ConnectTimeout=5",
	}
	return append(opts, extra...)
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

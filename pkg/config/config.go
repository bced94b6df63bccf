// Package config defines the guide-set configuration (guides.yaml) and
// provides strict YAML parsing, validation, and check compilation.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sbomer/docstep/pkg/checks"
	"github.com/sbomer/docstep/pkg/providers"
)

// Config is the top-level guide-set document.
type Config struct {
	APIVersion string     `yaml:"apiVersion" json:"apiVersion" jsonschema:"required,enum=docstep/v1"`
	Meta       Meta       `yaml:"meta"       json:"meta"       jsonschema:"required"`
	Guides     Guides     `yaml:"guides,omitempty" json:"guides,omitempty"`
	Env        EnvConfig  `yaml:"env,omitempty"    json:"env,omitempty"`
	Checks     []CheckDef `yaml:"checks,omitempty" json:"checks,omitempty"`
	VM         *VMConfig  `yaml:"vm,omitempty"     json:"vm,omitempty"`
}

// Meta names and describes the guide set.
type Meta struct {
	Name        string `yaml:"name"                  json:"name" jsonschema:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Guides selects the documents to scan. Include, when set, is an
// explicit ordered list relative to Root; otherwise Root is walked and
// *.md files are taken in lexical path order.
type Guides struct {
	Root    string   `yaml:"root,omitempty"    json:"root,omitempty"`
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
}

// EnvConfig locates the durable environment store.
type EnvConfig struct {
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// CheckDef declares the precondition/postcondition for one step. At
// least one of Probe, FileExists, Command, Expect must be set; setting
// several composes them, satisfied only when all hold.
type CheckDef struct {
	Step        string `yaml:"step"                  json:"step" jsonschema:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Probe       string `yaml:"probe,omitempty"       json:"probe,omitempty"`
	FileExists  string `yaml:"file_exists,omitempty" json:"file_exists,omitempty"`
	Command     string `yaml:"command,omitempty"     json:"command,omitempty"`
	Expect      string `yaml:"expect,omitempty"      json:"expect,omitempty"`
}

// Override is a standalone local-override document: extra environment
// lines appended to the store plus implicit skips for the steps the
// override replaces.
type Override struct {
	Env  []string `yaml:"env,omitempty"  json:"env,omitempty"`
	Skip []string `yaml:"skip,omitempty" json:"skip,omitempty"`
}

// VMConfig describes the development VM managed by the lifecycle
// driver. Provisioning mechanics (image download, cloud-init, libvirt
// commands) stay opaque shell; these fields only parameterize them.
type VMConfig struct {
	Name          string `yaml:"name"                     json:"name" jsonschema:"required"`
	Image         string `yaml:"image"                    json:"image" jsonschema:"required"`
	DiskGB        int    `yaml:"disk_gb,omitempty"        json:"disk_gb,omitempty"`
	MemoryMB      int    `yaml:"memory_mb,omitempty"      json:"memory_mb,omitempty"`
	CPUs          int    `yaml:"cpus,omitempty"           json:"cpus,omitempty"`
	User          string `yaml:"user,omitempty"           json:"user,omitempty"`
	Host          string `yaml:"host,omitempty"           json:"host,omitempty"` // empty = discover via DHCP lease
	SSHPubkey     string `yaml:"ssh_pubkey,omitempty"     json:"ssh_pubkey,omitempty"`
	SSHOptions    []string `yaml:"ssh_options,omitempty"  json:"ssh_options,omitempty"`
	Workdir       string `yaml:"workdir,omitempty"        json:"workdir,omitempty"`
	ReachAttempts int    `yaml:"reach_attempts,omitempty" json:"reach_attempts,omitempty"`
	ReachInterval string `yaml:"reach_interval,omitempty" json:"reach_interval,omitempty" jsonschema:"pattern=^[0-9]+(s|m|h)$"`
}

// DefaultStateDir holds run artifacts and the environment store.
const DefaultStateDir = ".docstep"

// LoadFile reads and parses a guide-set YAML file with strict
// unknown-field rejection.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a guide-set config from an io.Reader with strict
// unknown-field rejection.
func Load(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOverride reads a standalone local-override YAML file.
func LoadOverride(path string) (*Override, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open override: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var ov Override
	if err := dec.Decode(&ov); err != nil {
		return nil, fmt.Errorf("decode override: %w", err)
	}
	return &ov, nil
}

func (c *Config) applyDefaults() {
	if c.Guides.Root == "" {
		c.Guides.Root = "."
	}
	if c.Env.File == "" {
		c.Env.File = DefaultStateDir + "/env.sh"
	}
	if c.VM != nil {
		if c.VM.DiskGB == 0 {
			c.VM.DiskGB = 20
		}
		if c.VM.MemoryMB == 0 {
			c.VM.MemoryMB = 4096
		}
		if c.VM.CPUs == 0 {
			c.VM.CPUs = 2
		}
		if c.VM.User == "" {
			c.VM.User = "docstep"
		}
		if c.VM.ReachAttempts == 0 {
			c.VM.ReachAttempts = 30
		}
		if c.VM.ReachInterval == "" {
			c.VM.ReachInterval = "10s"
		}
	}
}

// ReachIntervalDuration parses the configured reachability poll
// interval.
func (v *VMConfig) ReachIntervalDuration() time.Duration {
	d, err := time.ParseDuration(v.ReachInterval)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// BuildChecks compiles the declarative check table into the explicit
// registration table consumed by the engine. Probes execute through
// the given executor so checks run wherever the steps do.
func (c *Config) BuildChecks(executor providers.CommandExecutor) (*checks.Registry, error) {
	reg := checks.NewRegistry()
	for _, def := range c.Checks {
		fn, err := def.Compile(executor)
		if err != nil {
			return nil, fmt.Errorf("check for step %q: %w", def.Step, err)
		}
		reg.Register(def.Step, fn)
	}
	return reg, nil
}

// Compile turns one declaration into a check function.
func (d CheckDef) Compile(executor providers.CommandExecutor) (checks.Func, error) {
	describe := d.Description
	if describe == "" {
		describe = d.Step
	}
	var fns []checks.Func
	if d.Probe != "" {
		fns = append(fns, checks.Probe(executor, d.Probe, describe))
	}
	if d.FileExists != "" {
		fns = append(fns, checks.FileExists(d.FileExists, describe))
	}
	if d.Command != "" {
		fns = append(fns, checks.CommandOnPath(d.Command, describe))
	}
	if d.Expect != "" {
		fns = append(fns, checks.Expr(d.Expect, describe))
	}
	switch len(fns) {
	case 0:
		return nil, fmt.Errorf("no probe kind set (one of probe, file_exists, command, expect)")
	case 1:
		return fns[0], nil
	default:
		return checks.All(fns...), nil
	}
}

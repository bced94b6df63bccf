package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbomer/docstep/pkg/providers"
)

const validYAML = `apiVersion: docstep/v1
meta:
  name: android-linux-setup
  description: Prepare a Linux host for Android development
guides:
  root: docs
  include:
    - 01-host.md
    - 02-sdk.md
checks:
  - step: install-jdk
    description: JDK present
    probe: "command -v javac"
  - step: sdk-root
    file_exists: "$ANDROID_SDK_ROOT"
    expect: 'env.ANDROID_SDK_ROOT != ""'
vm:
  name: devbox
  image: https://example.invalid/noble.img
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guides.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoadFile verifies parsing and defaulting of a valid config.
func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if cfg.Meta.Name != "android-linux-setup" {
		t.Errorf("Meta.Name = %q", cfg.Meta.Name)
	}
	if len(cfg.Guides.Include) != 2 {
		t.Errorf("Include = %v", cfg.Guides.Include)
	}
	if cfg.Env.File != ".docstep/env.sh" {
		t.Errorf("Env.File default = %q", cfg.Env.File)
	}
	// VM defaults fill in.
	if cfg.VM.DiskGB != 20 || cfg.VM.CPUs != 2 || cfg.VM.User != "docstep" {
		t.Errorf("VM defaults = %+v", cfg.VM)
	}
	if cfg.VM.ReachIntervalDuration().Seconds() != 10 {
		t.Errorf("ReachIntervalDuration = %v", cfg.VM.ReachIntervalDuration())
	}
}

// TestLoadRejectsUnknownFields verifies strict decoding.
func TestLoadRejectsUnknownFields(t *testing.T) {
	bad := "apiVersion: docstep/v1\nmeta:\n  name: x\nchekcs: []\n"
	if _, err := LoadFile(writeConfig(t, bad)); err == nil {
		t.Fatalf("unknown field accepted")
	}
}

// TestValidateFileValid verifies the full pipeline passes a correct
// document.
func TestValidateFileValid(t *testing.T) {
	cfg, errs := ValidateFile(writeConfig(t, validYAML))
	if len(errs) > 0 {
		t.Fatalf("ValidateFile errors: %v", errs)
	}
	if cfg == nil {
		t.Fatalf("ValidateFile returned nil config")
	}
}

// TestValidateDomainErrors covers the domain rules.
func TestValidateDomainErrors(t *testing.T) {
	cfg := &Config{
		APIVersion: "docstep/v2",
		Meta:       Meta{Name: "x"},
		Checks: []CheckDef{
			{Step: "ok", Probe: "true"},
			{Step: "ok", Probe: "true"},            // duplicate
			{Step: "bad id!", Probe: "true"},       // charset
			{Step: "empty-probe"},                  // no probe kind
			{Probe: "true"},                        // missing step
		},
		VM: &VMConfig{ReachInterval: "soon"},
	}
	errs := ValidateDomain(cfg)

	wants := []string{
		"unrecognized apiVersion",
		"duplicate check for step",
		"invalid step id",
		"at least one of probe",
		"requires a step id",
		"vm requires a name",
		"vm requires a base image",
		"invalid duration",
	}
	for _, want := range wants {
		found := false
		for _, e := range errs {
			if strings.Contains(e.Message, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("missing domain error containing %q in %v", want, errs)
		}
	}
}

// TestCompileSingleAndComposed verifies check compilation.
func TestCompileSingleAndComposed(t *testing.T) {
	exec := &providers.ShellExecutor{}

	if _, err := (CheckDef{Step: "x"}).Compile(exec); err == nil {
		t.Errorf("empty check compiled")
	}

	fn, err := (CheckDef{Step: "x", Expect: `env.SET == "1"`}).Compile(exec)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	res, err := fn(context.Background(), map[string]string{"SET": "1"})
	if err != nil || !res.Satisfied {
		t.Errorf("single check = %+v, %v", res, err)
	}

	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	os.WriteFile(marker, []byte("x"), 0644)

	fn, err = (CheckDef{
		Step:       "x",
		FileExists: marker,
		Expect:     `env.SET == "1"`,
	}).Compile(exec)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	res, err = fn(context.Background(), map[string]string{"SET": "0"})
	if err != nil {
		t.Fatalf("composed check error: %v", err)
	}
	if res.Satisfied {
		t.Errorf("composed check satisfied with one part failing")
	}
}

// TestBuildChecks verifies the declarative table registers per step.
func TestBuildChecks(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	reg, err := cfg.BuildChecks(&providers.ShellExecutor{})
	if err != nil {
		t.Fatalf("BuildChecks error: %v", err)
	}
	if !reg.Has("install-jdk") || !reg.Has("sdk-root") {
		t.Errorf("registered ids = %v", reg.IDs())
	}
}

// TestLoadOverride verifies the local-override document.
func TestLoadOverride(t *testing.T) {
	path := writeConfig(t, "env:\n  - export ANDROID_SDK_ROOT=/opt/custom\nskip:\n  - install-sdk\n")
	ov, err := LoadOverride(path)
	if err != nil {
		t.Fatalf("LoadOverride error: %v", err)
	}
	if len(ov.Env) != 1 || ov.Env[0] != "export ANDROID_SDK_ROOT=/opt/custom" {
		t.Errorf("Env = %v", ov.Env)
	}
	if len(ov.Skip) != 1 || ov.Skip[0] != "install-sdk" {
		t.Errorf("Skip = %v", ov.Skip)
	}
}

// TestGenerateJSONSchema verifies the exported schema names the
// document type and required fields.
func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatalf("GenerateJSONSchema error: %v", err)
	}
	s := string(data)
	for _, want := range []string{"guides-v1.json", "apiVersion", "\"$defs\""} {
		if !strings.Contains(s, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}

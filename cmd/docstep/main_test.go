package main

import (
	"strings"
	"testing"

	"github.com/sbomer/docstep/pkg/extract"
)

// TestSplitIDs verifies comma-splitting and whitespace trimming of
// repeated --skip values.
func TestSplitIDs(t *testing.T) {
	got := splitIDs([]string{"a,b", " c ", "", "d,,e"})
	want := []string{"a", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("splitIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitIDs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestFormatStepList verifies ordering, annotations and source
// locations in the list rendering.
func TestFormatStepList(t *testing.T) {
	steps := []extract.Step{
		{ID: "install-jdk", Source: "01-host.md", Line: 12},
		{ID: "sdk", Source: "02-sdk.md", Line: 30},
	}
	out := formatStepList(steps, map[string]bool{"install-jdk": true})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "install-jdk") || !strings.Contains(lines[0], "checked") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[0], "01-host.md:12") {
		t.Errorf("line 0 missing source location: %q", lines[0])
	}
	if !strings.Contains(lines[1], "run-always") {
		t.Errorf("line 1 = %q", lines[1])
	}
	if !strings.HasPrefix(lines[0], " 1. ") || !strings.HasPrefix(lines[1], " 2. ") {
		t.Errorf("ordinals wrong: %q", out)
	}
}

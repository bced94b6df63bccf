package envstore

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Load(filepath.Join(t.TempDir(), "env.sh"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestLoadMissingFile verifies a missing store file is an empty store,
// not an error.
func TestLoadMissingFile(t *testing.T) {
	s := openTestStore(t)
	if env := s.Materialize(); len(env) != 0 {
		t.Errorf("Materialize = %v, want empty", env)
	}
}

// TestRecordFiltersNonExports verifies only export assignment lines are
// recorded.
func TestRecordFiltersNonExports(t *testing.T) {
	s := openTestStore(t)
	cases := []struct {
		line string
		want bool
	}{
		{"export FOO=bar", true},
		{"  export FOO=bar", true},
		{"export _X1=ok", true},
		{"FOO=bar", false},
		{"echo export FOO=bar", false},
		{"export 1BAD=x", false},
		{"# export FOO=bar", false},
		{"sudo apt-get install -y curl", false},
	}
	for _, c := range cases {
		got, err := s.Record(c.line)
		if err != nil {
			t.Fatalf("Record(%q) error: %v", c.line, err)
		}
		if got != c.want {
			t.Errorf("Record(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

// TestRecordBodyCounts verifies body scanning records each export line.
func TestRecordBodyCounts(t *testing.T) {
	s := openTestStore(t)
	body := "export A=1\nmake install\nexport B=2\n"
	n, err := s.RecordBody(body)
	if err != nil {
		t.Fatalf("RecordBody error: %v", err)
	}
	if n != 2 {
		t.Errorf("RecordBody = %d, want 2", n)
	}
	env := s.Materialize()
	if env["A"] != "1" || env["B"] != "2" {
		t.Errorf("Materialize = %v", env)
	}
}

// TestMaterializeShadowing verifies later assignments win.
func TestMaterializeShadowing(t *testing.T) {
	s := openTestStore(t)
	s.Record("export SDK=/opt/old")
	s.Record("export OTHER=x")
	s.Record(`export SDK="/opt/new"`)

	env := s.Materialize()
	if env["SDK"] != "/opt/new" {
		t.Errorf("SDK = %q, want /opt/new", env["SDK"])
	}

	pairs := s.Pairs()
	if len(pairs) != 2 {
		t.Fatalf("Pairs len = %d, want 2", len(pairs))
	}
	// First-definition order, latest value.
	if pairs[0].Name != "SDK" || pairs[0].Value != "/opt/new" {
		t.Errorf("pairs[0] = %+v", pairs[0])
	}
	if pairs[1].Name != "OTHER" {
		t.Errorf("pairs[1] = %+v", pairs[1])
	}
}

// TestPersistenceAcrossReopen verifies recorded exports survive a close
// and reload, the cross-process durability contract.
func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.sh")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	s.Record("export KEEP=yes")
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	s2, err := Load(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()
	if got := s2.Materialize()["KEEP"]; got != "yes" {
		t.Errorf("KEEP = %q after reopen, want yes", got)
	}
}

// TestImportFile verifies overlay import and the hard error for a
// missing overlay path.
func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	overlay := filepath.Join(dir, "local.env")
	os.WriteFile(overlay, []byte("PRESEED=1\nexport QUOTED='v'\n\n# comment\n"), 0644)

	s, err := Load(filepath.Join(dir, "env.sh"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	defer s.Close()

	if err := s.ImportFile(overlay); err != nil {
		t.Fatalf("ImportFile error: %v", err)
	}
	env := s.Materialize()
	if env["PRESEED"] != "1" {
		t.Errorf("PRESEED = %q, want 1", env["PRESEED"])
	}
	if env["QUOTED"] != "v" {
		t.Errorf("QUOTED = %q, want v", env["QUOTED"])
	}

	if err := s.ImportFile(filepath.Join(dir, "missing.env")); err == nil {
		t.Errorf("ImportFile(missing) = nil, want error")
	}
}

// TestReset verifies truncation clears memory and the durable medium.
func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.sh")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	defer s.Close()

	s.Record("export GONE=1")
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if env := s.Materialize(); len(env) != 0 {
		t.Errorf("Materialize after Reset = %v, want empty", env)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("store file = %q after Reset, want empty", data)
	}

	// The store must still accept appends after the truncate.
	if _, err := s.Record("export BACK=1"); err != nil {
		t.Fatalf("Record after Reset error: %v", err)
	}
	if got := s.Materialize()["BACK"]; got != "1" {
		t.Errorf("BACK = %q, want 1", got)
	}
}

// TestExportsExcludesProcessEnv verifies the remote rendering carries
// only the store's own pairs.
func TestExportsExcludesProcessEnv(t *testing.T) {
	t.Setenv("DOCSTEP_TEST_LEAK", "nope")
	s := openTestStore(t)
	s.Record("export ONLY=this")

	exports := s.Exports()
	if len(exports) != 1 || exports[0] != "ONLY=this" {
		t.Errorf("Exports = %v, want [ONLY=this]", exports)
	}

	found := false
	for _, kv := range s.Environ() {
		if kv == "ONLY=this" {
			found = true
		}
	}
	if !found {
		t.Errorf("Environ missing ONLY=this")
	}
}

// TestParseAssignment covers the overlay parsing variants.
func TestParseAssignment(t *testing.T) {
	cases := []struct {
		line      string
		name, val string
		ok        bool
	}{
		{"export A=1", "A", "1", true},
		{"A=1", "A", "1", true},
		{`B="two words"`, "B", "two words", true},
		{"C='single'", "C", "single", true},
		{"# comment", "", "", false},
		{"", "", "", false},
		{"not an assignment", "", "", false},
		{"9X=1", "", "", false},
	}
	for _, c := range cases {
		name, val, ok := parseAssignment(c.line)
		if ok != c.ok || name != c.name || val != c.val {
			t.Errorf("parseAssignment(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.line, name, val, ok, c.name, c.val, c.ok)
		}
	}
}

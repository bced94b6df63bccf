// Package envstore maintains the durable environment shared by steps
// and across engine invocations. The medium is a plain shell fragment
// of `export NAME=value` lines, safe to hand-edit and to source.
package envstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// exportRe matches a single export assignment line. Only lines of this
// shape are recorded; everything else in a step body is ignored.
var exportRe = regexp.MustCompile(`^\s*export\s+([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

// Pair is one effective variable after materialization.
type Pair struct {
	Name  string
	Value string
}

// Store is an append-only log of export assignments backed by a file.
// Appends are flushed and synced immediately so a crash mid-run never
// loses an already-observed export. Later entries shadow earlier ones
// with the same name when the store is materialized.
type Store struct {
	path  string
	lines []string
	file  *os.File
}

// Load opens (or creates) the store at path and reads any persisted
// lines. A missing or empty file is an empty store.
func Load(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create env store dir: %w", err)
		}
	}
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read env store: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			s.lines = append(s.lines, line)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open env store: %w", err)
	}
	s.file = f
	return s, nil
}

// Close releases the underlying file.
func (s *Store) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Path returns the durable medium's location.
func (s *Store) Path() string {
	return s.path
}

// Record appends the line to the store iff it is an export assignment.
// Returns true when the line was recorded.
func (s *Store) Record(line string) (bool, error) {
	if !exportRe.MatchString(line) {
		return false, nil
	}
	if err := s.append(line); err != nil {
		return false, err
	}
	return true, nil
}

// RecordBody scans a step body line-by-line and records every export
// assignment it advertises. This runs before the skip/run decision so
// skipped steps still contribute their variables to later steps.
func (s *Store) RecordBody(body string) (int, error) {
	n := 0
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		ok, err := s.Record(scanner.Text())
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, scanner.Err()
}

// Append writes one overlay line verbatim, no export-pattern filter.
// Used for caller-supplied environment lines (local overrides).
func (s *Store) Append(line string) error {
	return s.append(line)
}

// ImportFile appends all lines of an external overlay file verbatim.
// The overlay must exist; a caller-supplied path that does not resolve
// is an error, unlike the store's own file.
func (s *Store) ImportFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("import env file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := s.append(line); err != nil {
			return err
		}
	}
	return nil
}

// append writes one line to memory and the durable medium, flushing at
// the line boundary.
func (s *Store) append(line string) error {
	s.lines = append(s.lines, line)
	if s.file == nil {
		return nil
	}
	if _, err := s.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append env store: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync env store: %w", err)
	}
	return nil
}

// Materialize replays the recorded lines in order and returns the
// effective mapping, later assignments shadowing earlier ones.
func (s *Store) Materialize() map[string]string {
	env := make(map[string]string)
	for _, line := range s.lines {
		name, value, ok := parseAssignment(line)
		if !ok {
			continue
		}
		env[name] = value
	}
	return env
}

// Pairs returns the materialized mapping in stable name order of first
// definition.
func (s *Store) Pairs() []Pair {
	env := make(map[string]string)
	var order []string
	for _, line := range s.lines {
		name, value, ok := parseAssignment(line)
		if !ok {
			continue
		}
		if _, seen := env[name]; !seen {
			order = append(order, name)
		}
		env[name] = value
	}
	pairs := make([]Pair, 0, len(order))
	for _, name := range order {
		pairs = append(pairs, Pair{Name: name, Value: env[name]})
	}
	return pairs
}

// Environ layers the materialized mapping over the process environment
// and returns it as NAME=value strings for command execution.
func (s *Store) Environ() []string {
	env := os.Environ()
	for _, p := range s.Pairs() {
		env = append(env, p.Name+"="+p.Value)
	}
	return env
}

// Exports returns only the store's own pairs as NAME=value strings.
// Used for remote execution, where the local process environment must
// not leak across the connection.
func (s *Store) Exports() []string {
	pairs := s.Pairs()
	env := make([]string, 0, len(pairs))
	for _, p := range pairs {
		env = append(env, p.Name+"="+p.Value)
	}
	return env
}

// Reset truncates the durable medium. Used by forced re-runs.
func (s *Store) Reset() error {
	s.lines = nil
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("close env store: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("truncate env store: %w", err)
	}
	s.file = f
	return nil
}

// parseAssignment splits an assignment line into name and value. The
// export keyword is optional so hand-written NAME=value overlays work,
// and comments and blanks are skipped. Surrounding quotes are trimmed
// the way a shell source would resolve them.
func parseAssignment(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	name := strings.TrimSpace(parts[0])
	if !isName(name) {
		return "", "", false
	}
	value := strings.TrimSpace(parts[1])
	value = strings.Trim(value, `"'`)
	return name, value, true
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

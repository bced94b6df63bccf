// Package extract scans markdown guides for identified command steps
// and builds the ordered step registry consumed by the runtime engine.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Step is an identified, executable unit of command text extracted from
// a guide. Body carries any preamble blocks that preceded the marker in
// the same document.
type Step struct {
	ID     string // unique within a run
	Source string // originating document (relative path)
	Body   string // command text, preamble prepended
	Line   int    // 1-based line of the winning marker's code block
}

// markerRe matches a step marker comment: <!-- step: IDENTIFIER -->
var markerRe = regexp.MustCompile(`^<!--\s*step:\s*([A-Za-z0-9_-]+)\s*-->`)

// commandLangs are the fence tags treated as executable command text.
// Blocks with any other tag (output samples, xml, json) are prose.
var commandLangs = map[string]bool{
	"sh":    true,
	"bash":  true,
	"shell": true,
}

// ScanDir discovers *.md files under root in lexical path order and
// extracts their steps into a single registry.
func ScanDir(root string) (*Registry, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".md" || ext == ".markdown" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan guides root %q: %w", root, err)
	}
	sort.Strings(paths)
	return ScanFiles(root, paths)
}

// ScanFiles extracts steps from the given documents in the given order.
// Paths are recorded relative to root when possible.
func ScanFiles(root string, paths []string) (*Registry, error) {
	reg := NewRegistry()
	for _, path := range paths {
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read guide: %w", err)
		}
		name := path
		if root != "" {
			if rel, relErr := filepath.Rel(root, path); relErr == nil {
				name = filepath.ToSlash(rel)
			}
		}
		steps, err := ParseDocument(name, source)
		if err != nil {
			return nil, fmt.Errorf("parse guide %q: %w", name, err)
		}
		for _, s := range steps {
			reg.Add(s)
		}
	}
	return reg, nil
}

// ParseDocument extracts the steps of a single document.
//
// A marker comment sets the pending step id. The first command block
// after it becomes that step's body, with any unmarked command blocks
// seen earlier in the same document prepended as preamble. Unconsumed
// preamble and pending ids die with the document.
func ParseDocument(name string, source []byte) ([]Step, error) {
	parser := goldmark.DefaultParser()
	doc := parser.Parse(text.NewReader(source))

	var steps []Step
	currentStepID := ""
	var preamble strings.Builder

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.HTMLBlock:
			if id, ok := parseMarker(n, source); ok {
				currentStepID = id
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			lang := string(n.Language(source))
			if !commandLangs[lang] {
				return ast.WalkSkipChildren, nil
			}
			body := blockContent(n, source)
			if currentStepID == "" {
				// Unmarked block: carry forward as preamble for the
				// next identified step in this document.
				preamble.WriteString(body)
				preamble.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
			steps = append(steps, Step{
				ID:     currentStepID,
				Source: name,
				Body:   preamble.String() + body,
				Line:   lineNumber(source, n) + 1,
			})
			preamble.Reset()
			currentStepID = ""
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// parseMarker extracts a step id from an HTML comment block, if the
// block's first line is a step marker.
func parseMarker(n *ast.HTMLBlock, source []byte) (string, bool) {
	if n.Lines().Len() == 0 {
		return "", false
	}
	first := n.Lines().At(0)
	line := strings.TrimSpace(string(first.Value(source)))
	m := markerRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// blockContent extracts the raw content of a fenced code block with the
// trailing newline trimmed.
func blockContent(n *ast.FencedCodeBlock, source []byte) string {
	var sb strings.Builder
	for i := 0; i < n.Lines().Len(); i++ {
		line := n.Lines().At(i)
		sb.Write(line.Value(source))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// lineNumber returns the 0-based line number of a node's first line.
func lineNumber(source []byte, node ast.Node) int {
	if node.Lines().Len() == 0 {
		return 0
	}
	line := node.Lines().At(0)
	count := 0
	for _, b := range source[:line.Start] {
		if b == '\n' {
			count++
		}
	}
	return count
}

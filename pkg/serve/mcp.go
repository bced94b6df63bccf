// Package serve exposes the guide set to AI agents over MCP. Tools are
// read-only (list, show, check) — running steps stays a human act on
// the CLI.
package serve

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sbomer/docstep/pkg/config"
	"github.com/sbomer/docstep/pkg/envstore"
	"github.com/sbomer/docstep/pkg/extract"
	"github.com/sbomer/docstep/pkg/providers"
)

// NewServer creates an MCP server with docstep tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"docstep",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("docstep/list",
			mcp.WithDescription("List the steps extracted from a docstep guide set, in execution order"),
			mcp.WithString("config", mcp.Required(), mcp.Description("Path to the guides.yaml file")),
		),
		HandleList,
	)

	s.AddTool(
		mcp.NewTool("docstep/show",
			mcp.WithDescription("Show the command body of one extracted step"),
			mcp.WithString("config", mcp.Required(), mcp.Description("Path to the guides.yaml file")),
			mcp.WithString("step", mcp.Required(), mcp.Description("Step identifier")),
		),
		HandleShow,
	)

	s.AddTool(
		mcp.NewTool("docstep/check",
			mcp.WithDescription("Report which steps would run and which are already satisfied (no execution)"),
			mcp.WithString("config", mcp.Required(), mcp.Description("Path to the guides.yaml file")),
		),
		HandleCheck,
	)

	s.AddTool(
		mcp.NewTool("docstep/schema",
			mcp.WithDescription("Export the JSON Schema for guides.yaml documents"),
		),
		HandleSchema,
	)

	return s
}

// HandleList implements the docstep/list MCP tool.
func HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, reg, result := loadGuides(req)
	if result != nil {
		return result, nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d step(s)\n", cfg.Meta.Name, reg.Len())
	for i, s := range reg.List() {
		annotation := "run-always"
		if hasCheck(cfg, s.ID) {
			annotation = "checked"
		}
		fmt.Fprintf(&sb, "%2d. %s  [%s]  %s\n", i+1, s.ID, annotation, s.Source)
	}
	return textResult(sb.String()), nil
}

// HandleShow implements the docstep/show MCP tool.
func HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, reg, result := loadGuides(req)
	if result != nil {
		return result, nil
	}
	id, _ := req.GetArguments()["step"].(string)
	step, ok := reg.Lookup(id)
	if !ok {
		return errorResult(fmt.Sprintf("no step %q in this guide set", id)), nil
	}
	return textResult(fmt.Sprintf("step %s (%s, line %d)\n\n%s\n", step.ID, step.Source, step.Line, step.Body)), nil
}

// HandleCheck implements the docstep/check MCP tool.
func HandleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, reg, result := loadGuides(req)
	if result != nil {
		return result, nil
	}

	store, err := envstore.Load(cfg.Env.File)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	defer store.Close()

	table, err := cfg.BuildChecks(&providers.ShellExecutor{})
	if err != nil {
		return errorResult(err.Error()), nil
	}

	env := store.Materialize()
	var sb strings.Builder
	for _, s := range reg.List() {
		if !table.Has(s.ID) {
			fmt.Fprintf(&sb, "%s: would run (action step)\n", s.ID)
			continue
		}
		res := table.Run(ctx, s.ID, env)
		if res.Satisfied {
			fmt.Fprintf(&sb, "%s: satisfied\n", s.ID)
		} else {
			fmt.Fprintf(&sb, "%s: would run (%s)\n", s.ID, res.Reason)
		}
		for _, o := range res.Observations {
			fmt.Fprintf(&sb, "    %s\n", o)
		}
	}
	return textResult(sb.String()), nil
}

// HandleSchema implements the docstep/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := config.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// loadGuides validates the config argument and extracts the registry.
// A non-nil CallToolResult short-circuits the handler with an error.
func loadGuides(req mcp.CallToolRequest) (*config.Config, *extract.Registry, *mcp.CallToolResult) {
	path, _ := req.GetArguments()["config"].(string)
	if path == "" {
		return nil, nil, errorResult("config argument is required")
	}
	cfg, errs := config.ValidateFile(path)
	if len(errs) > 0 {
		var msgs []string
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, nil, errorResult("invalid config:\n" + strings.Join(msgs, "\n"))
	}
	reg, err := scanGuides(cfg)
	if err != nil {
		return nil, nil, errorResult(err.Error())
	}
	return cfg, reg, nil
}

func scanGuides(cfg *config.Config) (*extract.Registry, error) {
	if len(cfg.Guides.Include) > 0 {
		paths := make([]string, 0, len(cfg.Guides.Include))
		for _, p := range cfg.Guides.Include {
			paths = append(paths, cfg.Guides.Root+"/"+p)
		}
		return extract.ScanFiles(cfg.Guides.Root, paths)
	}
	return extract.ScanDir(cfg.Guides.Root)
}

func hasCheck(cfg *config.Config, id string) bool {
	for _, def := range cfg.Checks {
		if def.Step == id {
			return true
		}
	}
	return false
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}

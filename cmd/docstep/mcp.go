package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sbomer/docstep/pkg/serve"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the guide set to AI agents over MCP (stdio)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.ServeStdio(serve.NewServer(version))
	},
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sbomer/docstep/pkg/config"
)

// --- schema ---

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the JSON Schema for guides.yaml documents",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := config.GenerateJSONSchema()
	if err != nil {
		return err
	}
	if schemaOut == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(schemaOut, data, 0644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	fmt.Printf("wrote %s\n", schemaOut)
	return nil
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "write the schema to a file instead of stdout")
}

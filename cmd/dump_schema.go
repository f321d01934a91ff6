package cmd

import (
	"fmt"
	"io"

	"github.com/benn-herrera/litebind/cache"
	"github.com/benn-herrera/litebind/loader"
	"github.com/spf13/cobra"
)

var schemaOut string

var dumpSchemaCmd = &cobra.Command{
	Use:   "dump_schema",
	Short: "Print the JSON Schema litebind.yaml is checked against",
	Long: "Prints the JSON Schema every project file is validated with before it is parsed. " +
		"Editors that understand JSON Schema can use it for completion in litebind.yaml.",
	Args: cobra.NoArgs,
	RunE: runDumpSchema,
}

func init() {
	dumpSchemaCmd.Flags().StringVarP(&schemaOut, "output", "o", "", "Write the schema to a file instead of stdout")
	rootCmd.AddCommand(dumpSchemaCmd)
}

func runDumpSchema(cmd *cobra.Command, args []string) error {
	schema := loader.SchemaJSON() + "\n"
	if schemaOut == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), schema)
		return err
	}
	if err := cache.WriteFileAtomic(schemaOut, []byte(schema), 0644); err != nil {
		return fmt.Errorf("writing schema: %w", err)
	}
	logger.WithField("path", schemaOut).Info("schema written")
	return nil
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/benn-herrera/litebind/loader"
	"github.com/spf13/cobra"
)

var (
	initOutput string
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter litebind.yaml pinned to TensorFlow Lite 1.12.2",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", ".", "Output directory")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing project file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(initOutput, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", initOutput, err)
	}
	path := filepath.Join(initOutput, DefaultProjectFile)
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	if err := os.WriteFile(path, loader.DefaultProjectYAML(), 0644); err != nil {
		return fmt.Errorf("writing project: %w", err)
	}

	success("Created %s", path)
	if !quiet {
		fmt.Printf("\nNext: litebind validate %s\n", path)
	}
	return nil
}

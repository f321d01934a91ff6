package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	bindingsFlags  buildFlags
	bindingsNoLock bool
)

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "Regenerate the Go type declarations from an existing working tree",
	Args:  cobra.NoArgs,
	RunE:  runBindings,
}

func init() {
	addBuildFlags(bindingsCmd, &bindingsFlags)
	bindingsCmd.Flags().BoolVar(&bindingsNoLock, "no-lock", false, "Do not lock the build output directory")
	rootCmd.AddCommand(bindingsCmd)
}

func runBindings(cmd *cobra.Command, args []string) error {
	pl, err := newPipeline(cmd, &bindingsFlags, true)
	if err != nil {
		return err
	}
	tree := pl.Dir.TreePath(&pl.Config.Release)
	if _, err := os.Stat(tree); err != nil {
		return fmt.Errorf("no working tree at %s; run litebind prepare first", tree)
	}
	unlock, err := lock(pl, bindingsNoLock)
	if err != nil {
		return err
	}
	defer unlock()

	path, err := pl.Bindings(cmd.Context(), tree)
	if err != nil {
		return err
	}
	success("bindings written to %s", path)
	return nil
}

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	fetchFlags  buildFlags
	fetchNoLock bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and verify the TensorFlow source archive only",
	Args:  cobra.NoArgs,
	RunE:  runFetch,
}

func init() {
	addBuildFlags(fetchCmd, &fetchFlags)
	fetchCmd.Flags().BoolVar(&fetchNoLock, "no-lock", false, "Do not lock the build output directory")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	pl, err := newPipeline(cmd, &fetchFlags, false)
	if err != nil {
		return err
	}
	unlock, err := lock(pl, fetchNoLock)
	if err != nil {
		return err
	}
	defer unlock()

	archive, err := pl.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	success("%s verified", archive)
	return nil
}

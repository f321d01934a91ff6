package cmd

import (
	"fmt"
	"runtime"

	"github.com/benn-herrera/litebind/loader"
	"github.com/spf13/cobra"
)

// Version is stamped at link time with
// -ldflags "-X github.com/benn-herrera/litebind/cmd.Version=v0.3.0".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the litebind version and the TensorFlow Lite release it pins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loader.LoadProjectBytes(loader.DefaultProjectYAML())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "litebind %s (TensorFlow Lite %s, %s %s/%s)\n",
			Version, p.Release.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/benn-herrera/litebind/cache"
	"github.com/benn-herrera/litebind/internal/lockfile"
	"github.com/benn-herrera/litebind/pipeline"
	"github.com/spf13/cobra"
)

var (
	prepareFlags  buildFlags
	prepareNoLock bool
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Fetch, build and bind TensorFlow Lite into the build output directory",
	Args:  cobra.NoArgs,
	RunE:  runPrepare,
}

func init() {
	addBuildFlags(prepareCmd, &prepareFlags)
	prepareCmd.Flags().BoolVar(&prepareNoLock, "no-lock", false, "Do not lock the build output directory")
	rootCmd.AddCommand(prepareCmd)
}

// newPipeline loads the project and returns a pipeline over its output
// directory.
func newPipeline(cmd *cobra.Command, bf *buildFlags, tools bool) (*pipeline.Pipeline, error) {
	p, err := loadProject()
	if err != nil {
		return nil, err
	}
	s, err := resolveSettings(cmd.Context(), cmd, p, bf, tools)
	if err != nil {
		return nil, err
	}
	dir, err := cache.Open(s.OutDir)
	if err != nil {
		return nil, err
	}
	pl := pipeline.New(s.Config, dir, logger)
	if verbose {
		pl.Stream = os.Stderr
	}
	return pl, nil
}

// lock takes the output directory lock for pl unless disabled.
func lock(pl *pipeline.Pipeline, disabled bool) (func(), error) {
	if disabled {
		return func() {}, nil
	}
	l, err := lockfile.Acquire(pl.Dir.LockPath(), pl.RunID)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", pl.Dir.Root, err)
	}
	logger.WithField("owner", l.Owner.String()).Debug("build output locked")
	return func() { _ = l.Release() }, nil
}

func runPrepare(cmd *cobra.Command, args []string) error {
	pl, err := newPipeline(cmd, &prepareFlags, true)
	if err != nil {
		return err
	}
	unlock, err := lock(pl, prepareNoLock)
	if err != nil {
		return err
	}
	defer unlock()

	res, err := pl.Run(cmd.Context())
	if err != nil {
		return err
	}
	success("TensorFlow Lite %s ready in %s", pl.Config.Release.Version, pl.Dir.Root)
	if verbose {
		fmt.Printf("  library:  %s\n", res.Artifact)
		fmt.Printf("  shim:     %s\n", res.Shim.Archive)
		fmt.Printf("  bindings: %s\n", res.Bindings)
		fmt.Printf("  link:     %s\n", res.Link)
	}
	return nil
}

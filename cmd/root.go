package cmd

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/logfmt"
	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	verbose    bool
	quiet      bool
	configPath string
)

var logger log.Interface = log.Log

var rootCmd = &cobra.Command{
	Use:   "litebind",
	Short: "Prepare TensorFlow Lite for use from Go",
	Long: "litebind fetches a pinned TensorFlow Lite source release, builds its static library, " +
		"generates Go declarations for a curated set of its types and compiles the C shim cgo links against.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Project file (default ./litebind.yaml, else the built-in project)")
}

// newLogger picks the human handler on a terminal and logfmt otherwise.
func newLogger(w *os.File) *log.Logger {
	var h log.Handler
	if term.IsTerminal(int(w.Fd())) {
		h = cli.New(w)
	} else {
		h = logfmt.New(w)
	}
	return &log.Logger{Handler: h, Level: logLevel()}
}

func logLevel() log.Level {
	switch {
	case quiet:
		return log.ErrorLevel
	case verbose:
		return log.DebugLevel
	default:
		return log.InfoLevel
	}
}

// success prints a final status line unless quiet.
func success(format string, args ...interface{}) {
	if !quiet {
		color.Success.Printf(format+"\n", args...)
	}
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.Danger.Sprintf("litebind: %v", err))
	}
	return err
}

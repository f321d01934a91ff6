package cmd

import (
	"fmt"

	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/source"
	"github.com/spf13/cobra"
)

var verifySHA256 string

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Check an archive against the pinned sha256 digest",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifySHA256, "sha256", "", "Expected digest (default: the project's release digest)")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	want := verifySHA256
	if want == "" {
		p, err := loadProject()
		if err != nil {
			return err
		}
		want = p.Release.SHA256
	}
	ok, err := source.Verify(args[0], want)
	if err != nil {
		return err
	}
	if !ok {
		got, _ := source.FileSHA256(args[0])
		return fmt.Errorf("%w: %s has sha256 %s, want %s", model.ErrIntegrity, args[0], got, want)
	}
	success("%s matches %s", args[0], want)
	return nil
}

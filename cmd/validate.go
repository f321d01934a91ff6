package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/benn-herrera/litebind/csrc"
	"github.com/benn-herrera/litebind/loader"
	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/resolver"
	"github.com/benn-herrera/litebind/toolchain"
	"github.com/benn-herrera/litebind/validate"
	"github.com/spf13/cobra"
)

var (
	valTree  string
	valClang string
)

var validateCmd = &cobra.Command{
	Use:   "validate [litebind.yaml]",
	Short: "Check a project file and its binding manifest without building",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&valTree, "tree", "", "Patched TensorFlow tree to resolve the manifest against")
	validateCmd.Flags().StringVar(&valClang, "clang", "", "Path to clang++ (env "+resolver.ClangEnv+")")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	var (
		p    *model.Project
		err  error
		name = "built-in project"
	)
	switch {
	case len(args) == 1:
		name = args[0]
		p, err = loader.LoadProject(args[0])
	default:
		if configPath != "" {
			name = configPath
		} else if _, serr := os.Stat(DefaultProjectFile); serr == nil {
			name = DefaultProjectFile
		}
		p, err = loadProject()
	}
	if err != nil {
		return fmt.Errorf("loading project: %w", err)
	}

	logger.WithField("project", name).Info("validating")
	logger.Debugf("release %s, %d types, %d blocklisted", p.Release.Version, len(p.Bindings.Types), len(p.Bindings.Blocklist))

	var types resolver.ResolvedTypes
	if valTree != "" {
		if types, err = resolveTree(cmd, &p.Bindings); err != nil {
			return err
		}
		logger.Debugf("resolved types: %d", len(types))
	}

	result := validate.Validate(&p.Bindings, types)
	if !result.IsValid() {
		return fmt.Errorf("semantic validation failed:\n%s", result.Error())
	}
	success("Validation passed.")
	return nil
}

// resolveTree parses the manifest's header inside the --tree working tree.
func resolveTree(cmd *cobra.Command, m *model.Manifest) (resolver.ResolvedTypes, error) {
	clang, err := resolver.ResolveClang(valClang)
	if err != nil {
		return nil, err
	}
	header := m.Header
	if header == "" {
		dir, err := os.MkdirTemp("", "litebind-validate-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		if err := csrc.WriteTo(dir); err != nil {
			return nil, err
		}
		header = filepath.Join(dir, csrc.WrapperName)
	}
	r := &resolver.Clang{Runner: toolchain.OSRunner{}, Path: clang, Log: logger}
	return r.Resolve(cmd.Context(), valTree, header, m)
}

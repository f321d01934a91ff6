package resolver

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/toolchain"
)

// ClangEnv names the environment variable that overrides the parser binary.
const ClangEnv = "LITEBIND_CLANG"

// ResolveClang finds the clang binary using the resolution order:
// 1. Explicit flag path (if non-empty)
// 2. LITEBIND_CLANG environment variable
// 3. "clang++" in PATH
func ResolveClang(flagPath string) (string, error) {
	return toolchain.Resolve(flagPath, ClangEnv, "clang++")
}

// IncludeDirs are the header search paths every consumer of the working
// tree needs.
func IncludeDirs(tree string) []string {
	return []string{
		tree,
		filepath.Join(tree, "tensorflow", "contrib", "lite", "tools", "make", "downloads", "flatbuffers", "include"),
	}
}

// ClangArgs builds the parser command line for header.
func ClangArgs(tree, header string, m *model.Manifest) []string {
	args := []string{"-x", "c++", "-std=" + m.EffectiveStd(), "-fsyntax-only"}
	args = append(args, m.ClangArgs...)
	for _, d := range m.Defines {
		args = append(args, "-D"+d)
	}
	for _, dir := range IncludeDirs(tree) {
		args = append(args, "-I"+dir)
	}
	args = append(args, "-Xclang", "-ast-dump=json", header)
	return args
}

// Clang parses the native headers of a working tree.
type Clang struct {
	Runner toolchain.Runner
	Path   string
	Log    log.Interface
}

// Resolve dumps the AST of header and indexes its types. Top-level
// namespaces on the manifest blocklist are not indexed.
func (c *Clang) Resolve(ctx context.Context, tree, header string, m *model.Manifest) (ResolvedTypes, error) {
	dump, err := os.CreateTemp("", "litebind-ast-*.json")
	if err != nil {
		return nil, err
	}
	defer os.Remove(dump.Name())
	defer dump.Close()

	cmd := toolchain.Command{Dir: tree, Name: c.Path, Args: ClangArgs(tree, header, m), Stdout: dump}
	c.Log.WithField("header", header).Info("parsing native headers")
	c.Log.Debug(cmd.String())

	if _, err := c.Runner.Run(ctx, cmd); err != nil {
		return nil, err
	}
	if _, err := dump.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var skip []string
	for _, b := range m.Blocklist {
		if !strings.Contains(b, "::") {
			skip = append(skip, b)
		}
	}
	types, err := ParseAST(bufio.NewReader(dump), ParseOptions{Skip: skip})
	if err != nil {
		return nil, err
	}
	c.Log.WithField("types", len(types)).Debug("native types indexed")
	return types, nil
}

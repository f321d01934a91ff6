// Package shim compiles the extern "C" adaptation layer that lets cgo call
// into the TensorFlow Lite C++ API, and archives it as a static library.
package shim

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/benn-herrera/litebind/cache"
	"github.com/benn-herrera/litebind/csrc"
	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/resolver"
	"github.com/benn-herrera/litebind/toolchain"
)

const stage = "shim"

// Environment overrides for the compiler and archiver.
const (
	CXXEnv = "CXX"
	AREnv  = "AR"
)

// CompileFlags are passed to every shim compilation, ahead of include paths.
var CompileFlags = []string{
	"-fPIC",
	"-std=c++11",
	"-Wno-sign-compare",
	"-DGEMMLOWP_ALLOW_SLOW_SCALAR_FALLBACK",
	"-g",
	"-O2",
}

// ResolveCXX finds the C++ compiler: flag, then $CXX, then c++ in PATH.
func ResolveCXX(flag string) (string, error) {
	return toolchain.Resolve(flag, CXXEnv, "c++")
}

// ResolveAR finds the archiver: flag, then $AR, then ar in PATH.
func ResolveAR(flag string) (string, error) {
	return toolchain.Resolve(flag, AREnv, "ar")
}

// KeyInputs are the shim specific inputs of its cache key.
func KeyInputs() []string {
	return []string{csrc.Fingerprint(), strings.Join(CompileFlags, " ")}
}

// Compiler builds the shim library.
type Compiler struct {
	Runner toolchain.Runner
	CXX    string // defaults to "c++"
	AR     string // defaults to "ar"
	Log    log.Interface
	Stream io.Writer // receives compiler output
}

// Request names everything one shim build depends on.
type Request struct {
	Tree      string      // patched TensorFlow tree providing headers
	SourceDir string      // where sources and the object file are written
	Archive   cache.Entry // the static library
	Header    string      // where the C header is published for cgo
	Key       cache.Key
	RunID     string
}

// Result lists the files a shim build produced or reused.
type Result struct {
	Archive string
	Header  string
	Reused  bool
}

// Args returns the compiler arguments for the shim translation unit.
func Args(tree string) []string {
	args := append([]string(nil), CompileFlags...)
	for _, dir := range resolver.IncludeDirs(tree) {
		args = append(args, "-I"+dir)
	}
	return append(args, "-c", csrc.ShimName, "-o", csrc.ShimObject)
}

// Compile returns the shim library, rebuilding it only when the cached
// archive is missing or was built from different inputs.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Result, error) {
	res := &Result{Archive: req.Archive.Path, Header: req.Header}

	ok, err := req.Archive.Valid(req.Key)
	if err != nil {
		return nil, model.Fail(stage, model.ErrShimCompile, err)
	}
	if ok {
		// Restores a deleted header; a current one is not touched.
		if _, err := cache.WriteFileIfChanged(req.Header, csrc.Header(), 0644); err != nil {
			return nil, model.Fail(stage, model.ErrShimCompile, err)
		}
		c.Log.WithField("archive", req.Archive.Path).Info("shim library up to date")
		res.Reused = true
		return res, nil
	}

	if err := csrc.WriteTo(req.SourceDir); err != nil {
		return nil, model.Fail(stage, model.ErrShimCompile, err)
	}
	if _, err := cache.WriteFileIfChanged(req.Header, csrc.Header(), 0644); err != nil {
		return nil, model.Fail(stage, model.ErrShimCompile, err)
	}

	cxx := c.CXX
	if cxx == "" {
		cxx = "c++"
	}
	compile := toolchain.Command{Dir: req.SourceDir, Name: cxx, Args: Args(req.Tree), Stream: c.Stream}
	c.Log.WithField("compiler", cxx).Info("compiling shim")
	c.Log.Debug(compile.String())
	if _, err := c.Runner.Run(ctx, compile); err != nil {
		return nil, model.Fail(stage, model.ErrShimCompile, err)
	}
	object := filepath.Join(req.SourceDir, csrc.ShimObject)
	if _, err := os.Stat(object); err != nil {
		return nil, model.Failf(stage, model.ErrShimCompile, "compiler succeeded but %s is missing", object)
	}

	// ar appends to an existing archive; build a fresh one beside the
	// destination and move it into place.
	partial := req.Archive.Path + ".partial"
	if err := os.Remove(partial); err != nil && !os.IsNotExist(err) {
		return nil, model.Fail(stage, model.ErrShimCompile, err)
	}
	ar := c.AR
	if ar == "" {
		ar = "ar"
	}
	archive := toolchain.Command{Dir: req.SourceDir, Name: ar, Args: []string{"crs", partial, csrc.ShimObject}, Stream: c.Stream}
	c.Log.Debug(archive.String())
	if _, err := c.Runner.Run(ctx, archive); err != nil {
		os.Remove(partial)
		return nil, model.Fail(stage, model.ErrShimCompile, err)
	}
	if err := os.Rename(partial, req.Archive.Path); err != nil {
		os.Remove(partial)
		return nil, model.Fail(stage, model.ErrShimCompile, fmt.Errorf("installing %s: %w", filepath.Base(req.Archive.Path), err))
	}
	if err := req.Archive.WriteStamp(req.Key, req.RunID); err != nil {
		return nil, model.Fail(stage, model.ErrShimCompile, err)
	}
	c.Log.WithField("archive", req.Archive.Path).Info("shim library built")
	return res, nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/benn-herrera/litebind/loader"
	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/pipeline"
	"github.com/benn-herrera/litebind/resolver"
	"github.com/benn-herrera/litebind/shim"
	"github.com/spf13/cobra"
)

// Environment overrides for the build section of the project file.
const (
	OutDirEnv      = "LITEBIND_OUT_DIR"
	TargetOSEnv    = "LITEBIND_TARGET_OS"
	TargetArchEnv  = "LITEBIND_TARGET_ARCH"
	ParallelismEnv = "LITEBIND_MAKE_PARALLELISM"
	DebugEnv       = "LITEBIND_DEBUG_TFLITE"
)

// DefaultProjectFile is picked up from the working directory when -c is not
// given.
const DefaultProjectFile = "litebind.yaml"

const defaultOutDir = "build/tflite"

// buildFlags are the command line overrides shared by the build commands.
type buildFlags struct {
	out   string
	os    string
	arch  string
	jobs  string
	debug bool
	clang string
	cxx   string
	ar    string
}

func addBuildFlags(cmd *cobra.Command, bf *buildFlags) {
	f := cmd.Flags()
	f.StringVarP(&bf.out, "out", "o", "", "Build output directory (env "+OutDirEnv+")")
	f.StringVar(&bf.os, "os", "", "Target operating system (env "+TargetOSEnv+")")
	f.StringVar(&bf.arch, "arch", "", "Target architecture (env "+TargetArchEnv+")")
	f.StringVarP(&bf.jobs, "jobs", "j", "", "make parallelism, a number or \"auto\" (env "+ParallelismEnv+")")
	f.BoolVar(&bf.debug, "debug", false, "Build the native library with debug info (env "+DebugEnv+")")
	f.StringVar(&bf.clang, "clang", "", "Path to clang++ (env "+resolver.ClangEnv+")")
	f.StringVar(&bf.cxx, "cxx", "", "Path to the C++ compiler (env "+shim.CXXEnv+")")
	f.StringVar(&bf.ar, "ar", "", "Path to the archiver (env "+shim.AREnv+")")
}

// loadProject reads -c, else ./litebind.yaml, else the built-in project.
func loadProject() (*model.Project, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(DefaultProjectFile); err == nil {
			path = DefaultProjectFile
		}
	}
	if path == "" {
		return loader.LoadProjectBytes(loader.DefaultProjectYAML())
	}
	p, err := loader.LoadProject(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return p, nil
}

// settings is the effective build configuration of one invocation.
type settings struct {
	OutDir string
	Config pipeline.Config
}

// overlay applies env then flag on top of a file value.
func overlay(cmd *cobra.Command, flag, env, file, value string) string {
	if cmd.Flags().Changed(flag) {
		return value
	}
	if v, ok := os.LookupEnv(env); ok && v != "" {
		return v
	}
	return file
}

// resolveSettings merges the project file, the environment and the flags,
// in increasing order of precedence. Tool paths are only resolved when
// tools is set, so commands that never run them work without them.
func resolveSettings(ctx context.Context, cmd *cobra.Command, p *model.Project, bf *buildFlags, tools bool) (*settings, error) {
	b := p.Build
	s := &settings{
		OutDir: overlay(cmd, "out", OutDirEnv, b.OutputDir, bf.out),
		Config: pipeline.Config{Release: p.Release, Bindings: p.Bindings},
	}
	if s.OutDir == "" {
		s.OutDir = defaultOutDir
	}

	t := &s.Config.Target
	t.OS = overlay(cmd, "os", TargetOSEnv, b.OS, bf.os)
	if t.OS == "" {
		t.OS = model.NativeOS(runtime.GOOS)
	}
	t.Arch = overlay(cmd, "arch", TargetArchEnv, b.Arch, bf.arch)
	if t.Arch == "" {
		t.Arch = model.NativeArch(runtime.GOARCH)
	}
	jobs, err := pipeline.ResolveParallelism(ctx, overlay(cmd, "jobs", ParallelismEnv, b.Parallelism, bf.jobs))
	if err != nil {
		return nil, err
	}
	t.Parallelism = jobs

	debug := overlay(cmd, "debug", DebugEnv, strconv.FormatBool(b.Debug), strconv.FormatBool(bf.debug))
	if s.Config.Debug, err = strconv.ParseBool(debug); err != nil {
		return nil, fmt.Errorf("%s: %q is not a boolean", DebugEnv, debug)
	}

	if !tools {
		return s, nil
	}
	if s.Config.Clang, err = resolver.ResolveClang(overlay(cmd, "clang", resolver.ClangEnv, b.Clang, bf.clang)); err != nil {
		return nil, err
	}
	if s.Config.CXX, err = shim.ResolveCXX(overlay(cmd, "cxx", shim.CXXEnv, b.CXX, bf.cxx)); err != nil {
		return nil, err
	}
	if s.Config.AR, err = shim.ResolveAR(overlay(cmd, "ar", shim.AREnv, b.AR, bf.ar)); err != nil {
		return nil, err
	}
	return s, nil
}

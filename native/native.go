// Package native builds the TensorFlow Lite static library from a patched
// working tree.
package native

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/apex/log"
	"github.com/benn-herrera/litebind/cache"
	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/patch"
	"github.com/benn-herrera/litebind/toolchain"
)

const (
	stage       = "build"
	libraryName = "libtensorflow-lite.a"
)

// Builder runs the release's own make-based build.
type Builder struct {
	Runner toolchain.Runner
	Make   string // defaults to "make"
	Log    log.Interface
	Stream io.Writer // receives make output
}

// BuildRequest names everything one build depends on.
type BuildRequest struct {
	Tree     string
	Target   model.Target
	Artifact cache.Entry
	Key      cache.Key
	RunID    string
}

// Jobs is the make job count used for target.
func Jobs(target model.Target) int {
	if target.Parallelism < 1 {
		return model.DefaultParallelism
	}
	return target.Parallelism
}

// Args returns the make arguments for target.
func Args(target model.Target) []string {
	return []string{
		"-j", strconv.Itoa(Jobs(target)),
		"-f", patch.MakefilePath,
		"TARGET=" + target.OS,
		"TARGET_ARCH=" + target.Arch,
	}
}

// OutputPath is where make leaves the library inside the tree.
func OutputPath(tree string, target model.Target) string {
	return filepath.Join(tree, "tensorflow", "contrib", "lite", "tools", "make", "gen",
		target.OS+"_"+target.Arch, "lib", libraryName)
}

// Build returns the artifact path, running make only when the cached
// artifact is missing or was built from different inputs.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (string, error) {
	ok, err := req.Artifact.Valid(req.Key)
	if err != nil {
		return "", model.Fail(stage, model.ErrExternalTool, err)
	}
	if ok {
		b.Log.WithField("artifact", req.Artifact.Path).Info("native library up to date")
		return req.Artifact.Path, nil
	}
	if req.Artifact.Exists() {
		b.Log.WithField("artifact", req.Artifact.Path).Warn("native library built from other inputs, rebuilding")
	}

	makeBin := b.Make
	if makeBin == "" {
		makeBin = "make"
	}
	cmd := toolchain.Command{Dir: req.Tree, Name: makeBin, Args: Args(req.Target), Stream: b.Stream}
	b.Log.WithFields(log.Fields{"target": req.Target.String(), "jobs": Jobs(req.Target)}).Info("building native library")
	b.Log.Debug(cmd.String())
	if _, err := b.Runner.Run(ctx, cmd); err != nil {
		return "", model.Fail(stage, model.ErrExternalTool, err)
	}

	built := OutputPath(req.Tree, req.Target)
	if _, err := os.Stat(built); err != nil {
		return "", model.Failf(stage, model.ErrExternalTool, "make succeeded but %s is missing", built)
	}
	if err := cache.CopyFileAtomic(built, req.Artifact.Path, 0644); err != nil {
		return "", model.Fail(stage, model.ErrExternalTool, fmt.Errorf("copying %s: %w", libraryName, err))
	}
	if err := req.Artifact.WriteStamp(req.Key, req.RunID); err != nil {
		return "", model.Fail(stage, model.ErrExternalTool, err)
	}
	return req.Artifact.Path, nil
}

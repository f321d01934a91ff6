// Package pipeline runs the build stages in order against one build-output
// directory: acquire, extract, patch, build, generate bindings and compile
// the shim.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/cpu"
	"gopkg.in/yaml.v3"

	"github.com/benn-herrera/litebind/cache"
	"github.com/benn-herrera/litebind/csrc"
	"github.com/benn-herrera/litebind/gen"
	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/native"
	"github.com/benn-herrera/litebind/patch"
	"github.com/benn-herrera/litebind/resolver"
	"github.com/benn-herrera/litebind/shim"
	"github.com/benn-herrera/litebind/source"
	"github.com/benn-herrera/litebind/toolchain"
	"github.com/benn-herrera/litebind/validate"
)

const (
	stageExtract  = "extract"
	stageBindings = "bindings"
	stageShim     = "shim"
	stageLink     = "link"
)

// Config is everything a run needs besides its injected collaborators.
type Config struct {
	Release  model.Release
	Bindings model.Manifest
	Target   model.Target
	Debug    bool

	// Resolved tool paths. Empty means the bare default name.
	Clang string
	CXX   string
	AR    string
	Make  string
}

// Pipeline wires the stages together. The zero value is not usable; set
// Dir and Log, the rest have defaults.
type Pipeline struct {
	Config Config
	Dir    *cache.Dir
	Runner toolchain.Runner
	Client *http.Client
	Log    log.Interface
	Stream io.Writer // receives external tool output
	RunID  string
}

// New returns a pipeline using real processes and the default HTTP client.
func New(cfg Config, dir *cache.Dir, logger log.Interface) *Pipeline {
	return &Pipeline{
		Config: cfg,
		Dir:    dir,
		Runner: toolchain.OSRunner{},
		Client: http.DefaultClient,
		Log:    logger,
		RunID:  uuid.NewString(),
	}
}

// Result lists what a full run produced.
type Result struct {
	RunID    string
	Archive  string
	Tree     string
	Artifact string
	Bindings string
	Shim     *shim.Result
	Link     string
}

func (p *Pipeline) logger() log.Interface {
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	return p.Log.WithField("run", p.RunID)
}

func (p *Pipeline) runner() toolchain.Runner {
	if p.Runner == nil {
		return toolchain.OSRunner{}
	}
	return p.Runner
}

func (p *Pipeline) patchOptions() patch.Options {
	return patch.Options{Version: p.Config.Release.Version, Debug: p.Config.Debug}
}

func (p *Pipeline) patchNames() []string {
	return patch.Names(patch.Plan(p.Config.Target, p.patchOptions()))
}

// Run executes every stage in order. Each stage reuses what a previous run
// left in the build-output directory.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	logger := p.logger()
	logger.WithFields(log.Fields{
		"release": p.Config.Release.Version,
		"target":  p.Config.Target.String(),
		"out":     p.Dir.Root,
	}).Info("preparing TensorFlow Lite")

	res := &Result{RunID: p.RunID}
	var err error
	if res.Archive, err = p.Fetch(ctx); err != nil {
		return nil, err
	}
	if res.Tree, err = p.PrepareTree(ctx, res.Archive); err != nil {
		return nil, err
	}
	if res.Artifact, err = p.Build(ctx, res.Tree); err != nil {
		return nil, err
	}
	if res.Bindings, err = p.Bindings(ctx, res.Tree); err != nil {
		return nil, err
	}
	if res.Shim, err = p.Shim(ctx, res.Tree, res.Artifact); err != nil {
		return nil, err
	}
	if res.Link, err = p.Link(); err != nil {
		return nil, err
	}
	logger.Info("done")
	return res, nil
}

// Fetch makes sure the verified release archive is present.
func (p *Pipeline) Fetch(ctx context.Context) (string, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	a := &source.Acquirer{Client: client, Log: p.logger()}
	return a.Ensure(ctx, &p.Config.Release, p.Dir.ArchivePath(&p.Config.Release))
}

// PrepareTree returns a patched working tree. An existing tree is reused
// after checking it was patched for this target; otherwise the archive is
// unpacked and patched in a staging directory and moved into place, so a
// failure never leaves a half-prepared tree behind.
func (p *Pipeline) PrepareTree(ctx context.Context, archive string) (string, error) {
	logger := p.logger()
	tree := p.Dir.TreePath(&p.Config.Release)
	opts := p.patchOptions()

	if info, err := os.Stat(tree); err == nil && info.IsDir() {
		if err := patch.Check(tree, p.Config.Target, opts); err != nil {
			return "", err
		}
		logger.WithField("tree", tree).Info("working tree present, skipping extraction")
		return tree, nil
	}

	staging := filepath.Join(p.Dir.SourceDir(), ".staging-"+p.RunID)
	defer os.RemoveAll(staging)

	logger.WithField("archive", archive).Info("extracting")
	unpacked, err := source.Extract(archive, staging, p.Config.Release.TreeName())
	if err != nil {
		return "", err
	}

	patcher := &patch.Patcher{Runner: p.runner(), Log: logger, Stream: p.Stream}
	if _, err := patcher.Apply(ctx, unpacked, p.Config.Target, opts, p.RunID); err != nil {
		return "", err
	}
	if err := os.Rename(unpacked, tree); err != nil {
		return "", model.Fail(stageExtract, model.ErrExtraction, fmt.Errorf("moving working tree into place: %w", err))
	}
	return tree, nil
}

// Build produces the native static library.
func (p *Pipeline) Build(ctx context.Context, tree string) (string, error) {
	key := cache.ComputeKey(cache.KeyInput{
		Release: &p.Config.Release,
		Target:  p.Config.Target,
		Patches: p.patchNames(),
	})
	b := &native.Builder{Runner: p.runner(), Make: p.Config.Make, Log: p.logger(), Stream: p.Stream}
	return b.Build(ctx, native.BuildRequest{
		Tree:     tree,
		Target:   p.Config.Target,
		Artifact: p.Dir.Entry(p.Dir.ArtifactPath()),
		Key:      key,
		RunID:    p.RunID,
	})
}

// Bindings generates the Go type declarations from tree's headers.
func (p *Pipeline) Bindings(ctx context.Context, tree string) (string, error) {
	logger := p.logger()
	m := &p.Config.Bindings

	digest, err := manifestDigest(m)
	if err != nil {
		return "", model.Fail(stageBindings, model.ErrBindingGeneration, err)
	}
	key := cache.ComputeKey(cache.KeyInput{
		Release: &p.Config.Release,
		Target:  p.Config.Target,
		Patches: p.patchNames(),
		Extra:   []string{digest, csrc.Fingerprint()},
	})
	entry := p.Dir.Entry(p.Dir.BindingsPath())
	if ok, err := entry.Valid(key); err != nil {
		return "", model.Fail(stageBindings, model.ErrBindingGeneration, err)
	} else if ok {
		logger.WithField("bindings", entry.Path).Info("bindings up to date")
		return entry.Path, nil
	}

	header := m.Header
	if header == "" {
		if err := csrc.WriteTo(p.Dir.ShimDir()); err != nil {
			return "", model.Fail(stageBindings, model.ErrBindingGeneration, err)
		}
		header = filepath.Join(p.Dir.ShimDir(), csrc.WrapperName)
	}

	clang := p.Config.Clang
	if clang == "" {
		clang = "clang++"
	}
	r := &resolver.Clang{Runner: p.runner(), Path: clang, Log: logger}
	types, err := r.Resolve(ctx, tree, header, m)
	if err != nil {
		return "", model.Fail(stageBindings, model.ErrBindingGeneration, err)
	}
	logger.WithField("types", len(types)).Debug("native types indexed")

	if result := validate.Validate(m, types); !result.IsValid() {
		return "", model.Fail(stageBindings, model.ErrBindingGeneration, result)
	}

	files, err := gen.Run("gotypes", gen.NewContext(m, types, &p.Config.Release))
	if err != nil {
		return "", model.Fail(stageBindings, model.ErrBindingGeneration, err)
	}
	if _, err := p.writeOutputs(files); err != nil {
		return "", model.Fail(stageBindings, model.ErrBindingGeneration, err)
	}
	if err := entry.WriteStamp(key, p.RunID); err != nil {
		return "", model.Fail(stageBindings, model.ErrBindingGeneration, err)
	}
	logger.WithField("bindings", entry.Path).Info("bindings generated")
	return entry.Path, nil
}

// Shim compiles the C ABI shim against tree. artifact must already exist.
func (p *Pipeline) Shim(ctx context.Context, tree, artifact string) (*shim.Result, error) {
	if _, err := os.Stat(artifact); err != nil {
		return nil, model.Failf(stageShim, model.ErrShimCompile, "native library missing: %v", err)
	}
	key := cache.ComputeKey(cache.KeyInput{
		Release: &p.Config.Release,
		Target:  p.Config.Target,
		Patches: p.patchNames(),
		Extra:   shim.KeyInputs(),
	})
	c := &shim.Compiler{Runner: p.runner(), CXX: p.Config.CXX, AR: p.Config.AR, Log: p.logger(), Stream: p.Stream}
	return c.Compile(ctx, shim.Request{
		Tree:      tree,
		SourceDir: p.Dir.ShimDir(),
		Archive:   p.Dir.Entry(p.Dir.ShimArchivePath()),
		Header:    p.Dir.ShimHeaderPath(),
		Key:       key,
		RunID:     p.RunID,
	})
}

// Link writes the cgo link directives next to the libraries. The file is
// keyed on everything it is rendered from and left alone while current.
func (p *Pipeline) Link() (string, error) {
	gctx := gen.NewContext(&p.Config.Bindings, nil, &p.Config.Release)
	gctx.ShimHeader = csrc.ShimHeader
	gctx.Links = model.DefaultLinkLibs

	key := cache.ComputeKey(cache.KeyInput{
		Release: &p.Config.Release,
		Target:  p.Config.Target,
		Extra:   []string{p.Config.Bindings.Package, gctx.ShimHeader, gen.LDFlags(gctx.Links)},
	})
	entry := p.Dir.Entry(p.Dir.LinkPath())
	if ok, err := entry.Valid(key); err != nil {
		return "", model.Fail(stageLink, model.ErrShimCompile, err)
	} else if ok {
		p.logger().WithField("link", entry.Path).Debug("link directives up to date")
		return entry.Path, nil
	}

	files, err := gen.Run("cgolink", gctx)
	if err != nil {
		return "", model.Fail(stageLink, model.ErrShimCompile, err)
	}
	if _, err := p.writeOutputs(files); err != nil {
		return "", model.Fail(stageLink, model.ErrShimCompile, err)
	}
	if err := entry.WriteStamp(key, p.RunID); err != nil {
		return "", model.Fail(stageLink, model.ErrShimCompile, err)
	}
	return entry.Path, nil
}

func (p *Pipeline) writeOutputs(files []*gen.OutputFile) ([]string, error) {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(p.Dir.Root, f.Path)
		if err := cache.WriteFileAtomic(path, f.Content, 0644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// manifestDigest hashes the manifest's canonical YAML form.
func manifestDigest(m *model.Manifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ResolveParallelism turns a configured job count into a number. Empty
// means the default, "auto" means one job per logical CPU.
func ResolveParallelism(ctx context.Context, value string) (int, error) {
	switch v := strings.TrimSpace(value); v {
	case "":
		return model.DefaultParallelism, nil
	case "auto":
		n, err := cpu.CountsWithContext(ctx, true)
		if err != nil || n < 1 {
			return model.DefaultParallelism, nil
		}
		return n, nil
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("parallelism must be a positive integer or \"auto\", got %q", value)
		}
		return n, nil
	}
}

// Package patch adapts a freshly extracted TensorFlow tree to the target
// platform before the native build runs.
package patch

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/benn-herrera/litebind/cache"
	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/toolchain"
	"gopkg.in/yaml.v3"
)

const stage = "patch"

// Paths inside the working tree.
const (
	DependencyScript = "tensorflow/contrib/lite/tools/make/download_dependencies.sh"
	MakefilePath     = "tensorflow/contrib/lite/tools/make/Makefile"
	TargetsDir       = "tensorflow/contrib/lite/tools/make/targets"
	StampName        = ".litebind-patch.yaml"
)

// Files that duplicate symbols of the static library or pull in Android
// only code.
var removals = []string{
	"tensorflow/contrib/lite/mmap_allocation_disabled.cc",
	"tensorflow/contrib/lite/nnapi_delegate.cc",
}

//go:embed overlays/*.inc
var overlays embed.FS

// Kind classifies a patch step.
type Kind string

const (
	KindScript  Kind = "deps"
	KindOverlay Kind = "overlay"
	KindRemove  Kind = "remove"
	KindDebug   Kind = "debug"
)

// Step is one modification of the working tree.
type Step struct {
	Kind Kind
	Name string // overlay file, removed file or overridden variable
	Path string // tree-relative
}

func (s Step) String() string { return string(s.Kind) + ":" + s.Name }

// Override replaces a single Makefile line with an assignment. Line and
// Version record what the override was checked against; it is refused on
// any other release or when the line no longer assigns Variable.
type Override struct {
	Variable string
	Value    string
	Line     int
	Version  string
}

// Text is the replacement line.
func (o Override) Text() string { return o.Variable + " := " + o.Value }

// DebugOverrides turn off optimization and inlining in the native build.
var DebugOverrides = []Override{
	{Variable: "CXXFLAGS", Value: "-O0 -g -fno-inline", Line: 54, Version: "1.12.2"},
	{Variable: "CFLAGS", Value: "-O0 -g -fno-inline", Line: 57, Version: "1.12.2"},
}

// Options select the optional parts of the patch set.
type Options struct {
	Version string // release version of the tree
	Debug   bool
}

// Plan lists the steps applied for target, in order. OS and arch rules are
// independent: linux/x86_64 gets only the linux overlay, linux/aarch64 gets
// both.
func Plan(target model.Target, opts Options) []Step {
	steps := []Step{{Kind: KindScript, Name: filepath.Base(DependencyScript), Path: DependencyScript}}

	if target.OS == "linux" {
		steps = append(steps, overlayStep("linux_makefile.inc"))
	}
	if target.Arch == "aarch64" {
		steps = append(steps, overlayStep("aarch64_makefile.inc"))
	}
	for _, r := range removals {
		steps = append(steps, Step{Kind: KindRemove, Name: filepath.Base(r), Path: r})
	}
	if opts.Debug {
		for _, o := range DebugOverrides {
			steps = append(steps, Step{Kind: KindDebug, Name: o.Variable, Path: MakefilePath})
		}
	}
	return steps
}

func overlayStep(name string) Step {
	return Step{Kind: KindOverlay, Name: name, Path: TargetsDir + "/" + name}
}

// Names returns the step names used in stamps and cache keys.
func Names(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.String()
	}
	return names
}

// Stamp records the patch set applied to a working tree.
type Stamp struct {
	Version   string    `yaml:"version"`
	Target    string    `yaml:"target"`
	Patches   []string  `yaml:"patches"`
	RunID     string    `yaml:"run_id,omitempty"`
	AppliedAt time.Time `yaml:"applied_at"`
}

// Matches reports whether the stamp records exactly names, in any order.
func (s *Stamp) Matches(names []string) bool {
	if len(s.Patches) != len(names) {
		return false
	}
	a := append([]string(nil), s.Patches...)
	b := append([]string(nil), names...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReadStamp returns the stamp of tree, or nil if the tree carries none.
func ReadStamp(tree string) (*Stamp, error) {
	data, err := os.ReadFile(filepath.Join(tree, StampName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Stamp
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", StampName, err)
	}
	return &s, nil
}

// Check refuses a tree that was patched with a different patch set than
// target and opts call for. A tree without a stamp is accepted as is.
func Check(tree string, target model.Target, opts Options) error {
	s, err := ReadStamp(tree)
	if err != nil {
		return model.Fail(stage, model.ErrPatch, err)
	}
	if s == nil {
		return nil
	}
	want := Names(Plan(target, opts))
	if !s.Matches(want) {
		return model.Failf(stage, model.ErrPatch,
			"%s was patched with [%s], this build needs [%s]; remove the tree to prepare it again",
			tree, strings.Join(s.Patches, " "), strings.Join(want, " "))
	}
	return nil
}

// Patcher applies the patch set to a working tree.
type Patcher struct {
	Runner toolchain.Runner
	Log    log.Interface
	Stream io.Writer // receives dependency script output
}

// Apply modifies tree in place and stamps it. It must run once, on a freshly
// extracted tree.
func (p *Patcher) Apply(ctx context.Context, tree string, target model.Target, opts Options, runID string) (*Stamp, error) {
	steps := Plan(target, opts)
	for _, s := range steps {
		p.Log.WithFields(log.Fields{"step": s.String(), "path": s.Path}).Debug("applying patch step")

		var err error
		switch s.Kind {
		case KindScript:
			err = p.runScript(ctx, tree, s)
		case KindOverlay:
			err = applyOverlay(tree, s)
		case KindRemove:
			err = applyRemoval(tree, s)
		case KindDebug:
			err = applyOverride(tree, overrideFor(s.Name), opts.Version)
		default:
			err = model.Failf(stage, model.ErrPatch, "unknown patch step %s", s)
		}
		if err != nil {
			return nil, err
		}
	}

	stamp := &Stamp{
		Version:   opts.Version,
		Target:    target.String(),
		Patches:   Names(steps),
		RunID:     runID,
		AppliedAt: time.Now().UTC(),
	}
	data, err := yaml.Marshal(stamp)
	if err != nil {
		return nil, model.Fail(stage, model.ErrPatch, err)
	}
	if err := cache.WriteFileAtomic(filepath.Join(tree, StampName), data, 0644); err != nil {
		return nil, model.Fail(stage, model.ErrPatch, err)
	}
	p.Log.WithField("patches", len(steps)).Info("working tree patched")
	return stamp, nil
}

func (p *Patcher) runScript(ctx context.Context, tree string, s Step) error {
	script := filepath.Join(tree, filepath.FromSlash(s.Path))
	if _, err := os.Stat(script); err != nil {
		return model.Fail(stage, model.ErrExternalTool, err)
	}
	p.Log.WithField("script", s.Path).Info("downloading native dependencies")
	if _, err := p.Runner.Run(ctx, toolchain.Command{Dir: tree, Name: script, Stream: p.Stream}); err != nil {
		return model.Fail(stage, model.ErrExternalTool, err)
	}
	return nil
}

func applyOverlay(tree string, s Step) error {
	data, err := overlays.ReadFile("overlays/" + s.Name)
	if err != nil {
		return model.Fail(stage, model.ErrPatch, err)
	}
	dst := filepath.Join(tree, filepath.FromSlash(s.Path))
	if info, err := os.Stat(filepath.Dir(dst)); err != nil || !info.IsDir() {
		return model.Failf(stage, model.ErrPatch, "%s is not a directory of the working tree", TargetsDir)
	}
	if err := cache.WriteFileAtomic(dst, data, 0644); err != nil {
		return model.Fail(stage, model.ErrPatch, err)
	}
	return nil
}

func applyRemoval(tree string, s Step) error {
	if err := os.Remove(filepath.Join(tree, filepath.FromSlash(s.Path))); err != nil {
		return model.Fail(stage, model.ErrPatch, err)
	}
	return nil
}

func overrideFor(variable string) Override {
	for _, o := range DebugOverrides {
		if o.Variable == variable {
			return o
		}
	}
	return Override{Variable: variable}
}

// applyOverride rewrites o.Line of the tree's Makefile.
func applyOverride(tree string, o Override, version string) error {
	if o.Line == 0 {
		return model.Failf(stage, model.ErrPatch, "no override defined for %s", o.Variable)
	}
	if o.Version != version {
		return model.Failf(stage, model.ErrPatch,
			"%s override targets line %d of release %s, tree is release %s", o.Variable, o.Line, o.Version, version)
	}

	path := filepath.Join(tree, filepath.FromSlash(MakefilePath))
	info, err := os.Stat(path)
	if err != nil {
		return model.Fail(stage, model.ErrPatch, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Fail(stage, model.ErrPatch, err)
	}

	lines := strings.Split(string(data), "\n")
	if o.Line > len(lines) {
		return model.Failf(stage, model.ErrPatch, "%s has %d lines, override expects line %d", MakefilePath, len(lines), o.Line)
	}
	current := lines[o.Line-1]
	assign := regexp.MustCompile(`^\s*` + regexp.QuoteMeta(o.Variable) + `\s*(:=|\?=|\+=|=)`)
	if !assign.MatchString(current) {
		return model.Failf(stage, model.ErrPatch,
			"%s:%d does not assign %s: %q", MakefilePath, o.Line, o.Variable, current)
	}
	lines[o.Line-1] = o.Text()

	if err := cache.WriteFileAtomic(path, []byte(strings.Join(lines, "\n")), info.Mode().Perm()); err != nil {
		return model.Fail(stage, model.ErrPatch, err)
	}
	return nil
}

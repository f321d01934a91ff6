package model

import (
	"fmt"
	"strings"
)

// Release pins the one TensorFlow source release a build uses.
type Release struct {
	Version     string `yaml:"version"`
	SHA256      string `yaml:"sha256"`
	URLTemplate string `yaml:"url"`
}

// URL expands the {version} placeholder of the URL template.
func (r *Release) URL() string {
	return strings.ReplaceAll(r.URLTemplate, "{version}", r.Version)
}

// ArchiveName is the file name the source archive is stored under.
// e.g., "1.12.2" → "v1.12.2.tar.gz"
func (r *Release) ArchiveName() string {
	return fmt.Sprintf("v%s.tar.gz", r.Version)
}

// TreeName is the name of the root directory inside the archive.
// e.g., "1.12.2" → "tensorflow-1.12.2"
func (r *Release) TreeName() string {
	return fmt.Sprintf("tensorflow-%s", r.Version)
}

// Target is the operating system / architecture pair handed to the native
// build tool, plus how many jobs it may run.
type Target struct {
	OS          string
	Arch        string
	Parallelism int
}

func (t Target) String() string {
	return t.OS + "_" + t.Arch
}

// DefaultParallelism is the make job count used when nothing overrides it.
const DefaultParallelism = 3

var goosNames = map[string]string{
	"darwin":  "osx",
	"ios":     "ios",
	"linux":   "linux",
	"android": "android",
	"windows": "windows",
	"freebsd": "freebsd",
}

var goarchNames = map[string]string{
	"amd64":   "x86_64",
	"arm64":   "aarch64",
	"arm":     "armv7l",
	"386":     "x86",
	"riscv64": "riscv64",
}

// NativeOS maps a GOOS value onto the name the TensorFlow Lite makefiles
// expect. Names that are already native pass through unchanged.
func NativeOS(goos string) string {
	if n, ok := goosNames[goos]; ok {
		return n
	}
	return goos
}

// NativeArch maps a GOARCH value onto the TensorFlow Lite makefile name.
func NativeArch(goarch string) string {
	if n, ok := goarchNames[goarch]; ok {
		return n
	}
	return goarch
}

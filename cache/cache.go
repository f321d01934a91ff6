// Package cache lays out the build-output directory and decides whether a
// previously produced file may be reused.
//
// The directory is a single-writer cache: concurrent builds must not share a
// root. Presence of a file is treated as proof of validity unless a stamp
// written alongside it records a different key.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/benn-herrera/litebind/model"
	"gopkg.in/yaml.v3"
)

// Dir is a handle on one build-output root.
type Dir struct {
	Root string
}

// Open returns a handle on root, creating it if needed.
func Open(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("build output directory is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", abs, err)
	}
	return &Dir{Root: abs}, nil
}

// SourceDir holds the archive and the working tree.
func (d *Dir) SourceDir() string { return filepath.Join(d.Root, "tensorflow") }

// ArchivePath is where the verified source archive is kept.
func (d *Dir) ArchivePath(r *model.Release) string {
	return filepath.Join(d.SourceDir(), r.ArchiveName())
}

// TreePath is the extracted and patched working tree.
func (d *Dir) TreePath(r *model.Release) string {
	return filepath.Join(d.SourceDir(), r.TreeName())
}

// ArtifactPath is the stable location of the native static library.
func (d *Dir) ArtifactPath() string { return filepath.Join(d.Root, "libtensorflow-lite.a") }

// BindingsPath is the generated Go type declarations file.
func (d *Dir) BindingsPath() string { return filepath.Join(d.Root, "tflite_types.go") }

// ShimDir holds the shim source and object files.
func (d *Dir) ShimDir() string { return filepath.Join(d.Root, "shim") }

// ShimArchivePath is the compiled shim static library.
func (d *Dir) ShimArchivePath() string { return filepath.Join(d.Root, "libtflite_shim.a") }

// LinkPath is the generated cgo link-directive file.
func (d *Dir) LinkPath() string { return filepath.Join(d.Root, "tflite_link.go") }

// ShimHeaderPath is the C header the link file includes.
func (d *Dir) ShimHeaderPath() string { return filepath.Join(d.Root, "tflite_shim.h") }

// LockPath is the advisory lock guarding the whole root.
func (d *Dir) LockPath() string { return filepath.Join(d.Root, ".litebind.lock") }

// Entry returns the cache entry for a file in this root.
func (d *Dir) Entry(path string) Entry { return Entry{Path: path} }

// Key identifies the inputs a cached file was produced from.
type Key string

// KeyInput lists everything that influences a cached file.
type KeyInput struct {
	Release *model.Release
	Target  model.Target
	Patches []string // names of applied patches, order-insensitive
	Extra   []string // stage specific inputs, order-sensitive
}

// ComputeKey hashes the inputs deterministically. All components are
// length-prefixed so that adjacent fields cannot run into each other.
// Parallelism is deliberately not part of the key.
func ComputeKey(in KeyInput) Key {
	h := sha256.New()
	writeField := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		io.WriteString(h, s)
	}

	if in.Release != nil {
		writeField(in.Release.Version)
		writeField(in.Release.SHA256)
	} else {
		writeField("")
		writeField("")
	}
	writeField(in.Target.OS)
	writeField(in.Target.Arch)

	patches := append([]string(nil), in.Patches...)
	sort.Strings(patches)
	writeField(fmt.Sprint(len(patches)))
	for _, p := range patches {
		writeField(p)
	}

	writeField(fmt.Sprint(len(in.Extra)))
	for _, e := range in.Extra {
		writeField(e)
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Stamp records how a cached file was produced.
type Stamp struct {
	Key       Key       `yaml:"key"`
	RunID     string    `yaml:"run_id,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Entry is a single cached file plus its optional stamp.
type Entry struct {
	Path string
}

// StampPath returns the sidecar path: dir/.<name>.stamp
func (e Entry) StampPath() string {
	return filepath.Join(filepath.Dir(e.Path), "."+filepath.Base(e.Path)+".stamp")
}

// Exists reports whether the cached file is present.
func (e Entry) Exists() bool {
	_, err := os.Stat(e.Path)
	return err == nil
}

// Valid reports whether the entry can be reused for key. A present file
// without a stamp is trusted; a stamp with a different key is not.
func (e Entry) Valid(key Key) (bool, error) {
	if !e.Exists() {
		return false, nil
	}
	s, err := e.ReadStamp()
	if err != nil {
		return false, err
	}
	if s == nil {
		return true, nil
	}
	return s.Key == key, nil
}

// ReadStamp returns the stamp or nil when there is none.
func (e Entry) ReadStamp() (*Stamp, error) {
	data, err := os.ReadFile(e.StampPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading stamp: %w", err)
	}
	var s Stamp
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing stamp %s: %w", e.StampPath(), err)
	}
	return &s, nil
}

// WriteStamp records key next to the cached file.
func (e Entry) WriteStamp(key Key, runID string) error {
	data, err := yaml.Marshal(&Stamp{Key: key, RunID: runID, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return WriteFileAtomic(e.StampPath(), data, 0644)
}

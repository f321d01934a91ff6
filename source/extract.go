package source

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/benn-herrera/litebind/model"
)

const stageExtract = "extract"

// Extract unpacks a gzip-compressed tar archive into destination and returns
// destination/treeName. It does nothing if that directory already exists.
func Extract(archivePath, destination, treeName string) (string, error) {
	tree := filepath.Join(destination, treeName)
	if info, err := os.Stat(tree); err == nil && info.IsDir() {
		return tree, nil
	}

	if err := unpack(archivePath, destination); err != nil {
		return "", model.Fail(stageExtract, model.ErrExtraction, err)
	}
	if info, err := os.Stat(tree); err != nil || !info.IsDir() {
		return "", model.Failf(stageExtract, model.ErrExtraction,
			"%s did not contain %s/", archivePath, treeName)
	}
	return tree, nil
}

func unpack(archivePath, destination string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("decompressing %s: %w", archivePath, err)
	}
	defer gz.Close()

	if err := os.MkdirAll(destination, 0755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", archivePath, err)
		}

		target, err := entryPath(destination, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := linkInside(destination, target, hdr.Linkname); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			src, err := entryPath(destination, hdr.Linkname)
			if err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Link(src, target); err != nil {
				return err
			}
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
			// GitHub tarballs carry the commit id here.
		default:
			return fmt.Errorf("unsupported tar entry %s (type %c)", hdr.Name, hdr.Typeflag)
		}
	}
}

// entryPath joins name onto destination, rejecting names that escape it.
func entryPath(destination, name string) (string, error) {
	target := filepath.Join(destination, filepath.FromSlash(name))
	rel, err := filepath.Rel(destination, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("tar entry %q escapes %s", name, destination)
	}
	return target, nil
}

// linkInside rejects a symlink at target whose destination is absolute or
// resolves outside destination; later entries could write through it.
func linkInside(destination, target, linkname string) error {
	if filepath.IsAbs(linkname) || filepath.VolumeName(linkname) != "" {
		return fmt.Errorf("symlink %s points at absolute path %q", target, linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	rel, err := filepath.Rel(destination, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("symlink %s points outside %s", target, destination)
	}
	return nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return out.Close()
}

package csrc

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestWrapperIncludesInterpreterAPI(t *testing.T) {
	w := string(Sources()[WrapperName])
	for _, inc := range []string{
		"tensorflow/contrib/lite/interpreter.h",
		"tensorflow/contrib/lite/kernels/register.h",
		"tensorflow/contrib/lite/model.h",
	} {
		if !strings.Contains(w, `#include "`+inc+`"`) {
			t.Errorf("wrapper missing include of %s", inc)
		}
	}
}

func TestShimMatchesHeader(t *testing.T) {
	decl := regexp.MustCompile(`\b(litebind_[a-z_]+)\(`)
	declared := map[string]bool{}
	for _, m := range decl.FindAllStringSubmatch(string(Sources()[ShimHeader]), -1) {
		declared[m[1]] = true
	}
	defined := map[string]bool{}
	for _, m := range decl.FindAllStringSubmatch(string(Sources()[ShimName]), -1) {
		defined[m[1]] = true
	}
	if len(declared) == 0 {
		t.Fatal("no declarations found in header")
	}
	for name := range declared {
		if !defined[name] {
			t.Errorf("%s declared but not defined", name)
		}
	}
	for name := range defined {
		if !declared[name] {
			t.Errorf("%s defined but not declared", name)
		}
	}
}

func TestWriteTo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shim")
	if err := WriteTo(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for name, want := range Sources() {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("%s not written: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s content differs from the embedded copy", name)
		}
	}
}

func TestWriteTo_KeepsCurrentFiles(t *testing.T) {
	dir := t.TempDir()
	if err := WriteTo(dir); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	path := filepath.Join(dir, ShimName)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	if err := WriteTo(dir); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(path)
	if !info.ModTime().Equal(old) {
		t.Error("an unchanged source must not be rewritten")
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint()
	if len(fp) != 64 {
		t.Errorf("expected a hex sha256, got %q", fp)
	}
	if fp != Fingerprint() {
		t.Error("fingerprint must be stable")
	}
}

package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/benn-herrera/litebind/internal/testutil"
	"github.com/benn-herrera/litebind/model"
)

// archiveServer serves body at /tar.gz/v<version> and counts requests.
func archiveServer(t *testing.T, body []byte, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/tensorflow/tensorflow/tar.gz/v1.12.2" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func release(srv *httptest.Server, sha string) *model.Release {
	return &model.Release{
		Version:     "1.12.2",
		SHA256:      sha,
		URLTemplate: srv.URL + "/tensorflow/tensorflow/tar.gz/v{version}",
	}
}

func newAcquirer(srv *httptest.Server) *Acquirer {
	return &Acquirer{Client: srv.Client(), Log: testutil.Logger()}
}

func TestEnsure_FetchesMissingArchive(t *testing.T) {
	body := testutil.TarGz(t, map[string]string{"tensorflow-1.12.2/README.md": "tf"})
	srv, hits := archiveServer(t, body, http.StatusOK)
	dst := filepath.Join(t.TempDir(), "tensorflow", "v1.12.2.tar.gz")

	got, err := newAcquirer(srv).Ensure(context.Background(), release(srv, testutil.SHA256(body)), dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != dst {
		t.Errorf("expected %q, got %q", dst, got)
	}
	if *hits != 1 {
		t.Errorf("expected 1 fetch, got %d", *hits)
	}
	if ok, _ := Verify(dst, testutil.SHA256(body)); !ok {
		t.Error("written archive does not verify")
	}
}

func TestEnsure_VerifiedArchiveSkipsFetch(t *testing.T) {
	body := testutil.TarGz(t, map[string]string{"tensorflow-1.12.2/README.md": "tf"})
	srv, hits := archiveServer(t, body, http.StatusOK)
	dst := filepath.Join(t.TempDir(), "v1.12.2.tar.gz")
	os.WriteFile(dst, body, 0644)

	if _, err := newAcquirer(srv).Ensure(context.Background(), release(srv, testutil.SHA256(body)), dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *hits != 0 {
		t.Errorf("expected no fetch for a verified archive, got %d", *hits)
	}
}

func TestEnsure_CorruptedArchiveIsRefetched(t *testing.T) {
	body := testutil.TarGz(t, map[string]string{"tensorflow-1.12.2/README.md": "tf"})
	srv, hits := archiveServer(t, body, http.StatusOK)
	dst := filepath.Join(t.TempDir(), "v1.12.2.tar.gz")

	corrupted := append([]byte(nil), body...)
	corrupted[len(corrupted)/2] ^= 0xff
	os.WriteFile(dst, corrupted, 0644)

	if _, err := newAcquirer(srv).Ensure(context.Background(), release(srv, testutil.SHA256(body)), dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *hits != 1 {
		t.Errorf("expected exactly one re-fetch, got %d", *hits)
	}
	if ok, _ := Verify(dst, testutil.SHA256(body)); !ok {
		t.Error("re-fetched archive does not verify")
	}
}

func TestEnsure_MismatchAfterFetchIsFatal(t *testing.T) {
	// The server hands out another version's archive under the pinned name.
	other := testutil.TarGz(t, map[string]string{"tensorflow-1.13.1/README.md": "tf"})
	srv, hits := archiveServer(t, other, http.StatusOK)
	dst := filepath.Join(t.TempDir(), "v1.12.2.tar.gz")
	pinned := "90ffc7cf1df5e4b8385c9108db18d5d5034ec423547c0e167d44f5746a20d06b"

	_, err := newAcquirer(srv).Ensure(context.Background(), release(srv, pinned), dst)
	if !errors.Is(err, model.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if *hits != 1 {
		t.Errorf("expected exactly one fetch attempt, got %d", *hits)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Error("mismatching archive must be left on disk")
	}
}

func TestEnsure_HTTPErrorIsTransportError(t *testing.T) {
	srv, _ := archiveServer(t, []byte("gone"), http.StatusNotFound)
	dst := filepath.Join(t.TempDir(), "v1.12.2.tar.gz")

	_, err := newAcquirer(srv).Ensure(context.Background(), release(srv, testutil.SHA256([]byte("x"))), dst)
	if !errors.Is(err, model.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("no archive should be written for a failed fetch")
	}
}

func TestEnsure_UnreachableHostIsTransportError(t *testing.T) {
	srv, _ := archiveServer(t, nil, http.StatusOK)
	r := release(srv, testutil.SHA256([]byte("x")))
	srv.Close()

	_, err := (&Acquirer{Log: testutil.Logger()}).Ensure(context.Background(), r, filepath.Join(t.TempDir(), "a.tar.gz"))
	if !errors.Is(err, model.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "f")
	os.WriteFile(path, []byte("abc"), 0644)

	// sha256("abc")
	const abc = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if ok, err := Verify(path, abc); err != nil || !ok {
		t.Errorf("expected match, got %v, %v", ok, err)
	}
	if ok, _ := Verify(path, "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD"); !ok {
		t.Error("pinned value should compare case-insensitively as lowercase hex")
	}
	if ok, _ := Verify(path, abc[:63]+"0"); ok {
		t.Error("expected mismatch")
	}
	if _, err := Verify(filepath.Join(tmp, "missing"), abc); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestExtract(t *testing.T) {
	body := testutil.TarGz(t, map[string]string{
		"tensorflow-1.12.2/":                                  "",
		"tensorflow-1.12.2/tensorflow/contrib/lite/model.h":   "#pragma once\n",
		"tensorflow-1.12.2/tensorflow/contrib/lite/build.sh":  "#!/bin/sh\n",
		"tensorflow-1.12.2/tensorflow/contrib/lite/nested/x.c": "int x;\n",
	})
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "v1.12.2.tar.gz")
	os.WriteFile(archive, body, 0644)
	dest := filepath.Join(tmp, "tensorflow")

	tree, err := Extract(archive, dest, "tensorflow-1.12.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree != filepath.Join(dest, "tensorflow-1.12.2") {
		t.Errorf("unexpected tree path %q", tree)
	}
	data, err := os.ReadFile(filepath.Join(tree, "tensorflow", "contrib", "lite", "model.h"))
	if err != nil || string(data) != "#pragma once\n" {
		t.Errorf("unexpected extracted content %q, %v", data, err)
	}
	info, err := os.Stat(filepath.Join(tree, "tensorflow", "contrib", "lite", "build.sh"))
	if err != nil || info.Mode().Perm()&0100 == 0 {
		t.Errorf("expected executable bit to survive extraction")
	}
}

func TestExtract_SkipsExistingTree(t *testing.T) {
	tmp := t.TempDir()
	dest := filepath.Join(tmp, "tensorflow")
	os.MkdirAll(filepath.Join(dest, "tensorflow-1.12.2"), 0755)

	// The archive does not even exist: an existing tree must short-circuit.
	tree, err := Extract(filepath.Join(tmp, "missing.tar.gz"), dest, "tensorflow-1.12.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree != filepath.Join(dest, "tensorflow-1.12.2") {
		t.Errorf("unexpected tree path %q", tree)
	}
}

func TestExtract_CorruptArchive(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "v1.12.2.tar.gz")
	os.WriteFile(archive, []byte("definitely not gzip"), 0644)

	_, err := Extract(archive, filepath.Join(tmp, "out"), "tensorflow-1.12.2")
	if !errors.Is(err, model.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtract_WrongRoot(t *testing.T) {
	body := testutil.TarGz(t, map[string]string{"tensorflow-1.13.1/README.md": "tf"})
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "v1.12.2.tar.gz")
	os.WriteFile(archive, body, 0644)

	_, err := Extract(archive, filepath.Join(tmp, "out"), "tensorflow-1.12.2")
	if !errors.Is(err, model.ErrExtraction) {
		t.Fatalf("expected ErrExtraction for missing root, got %v", err)
	}
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	body := testutil.TarGz(t, map[string]string{"../evil.txt": "x"})
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "a.tar.gz")
	os.WriteFile(archive, body, 0644)

	_, err := Extract(archive, filepath.Join(tmp, "out"), "tensorflow-1.12.2")
	if !errors.Is(err, model.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "evil.txt")); !os.IsNotExist(err) {
		t.Error("escaping entry was written")
	}
}

func TestExtract_Symlinks(t *testing.T) {
	tests := []struct {
		name    string
		link    string
		wantErr bool
	}{
		{"sibling", "model.h", false},
		{"parent inside tree", "../lite/model.h", false},
		{"absolute", "/etc", true},
		{"escapes", "../../../../../outside", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := testutil.TarGz(t, map[string]string{
				"tensorflow-1.12.2/lite/model.h": "#pragma once\n",
				"tensorflow-1.12.2/lite/link":    testutil.Symlink + tt.link,
			})
			tmp := t.TempDir()
			archive := filepath.Join(tmp, "v1.12.2.tar.gz")
			os.WriteFile(archive, body, 0644)

			_, err := Extract(archive, filepath.Join(tmp, "out"), "tensorflow-1.12.2")
			if tt.wantErr {
				if !errors.Is(err, model.ErrExtraction) {
					t.Fatalf("expected ErrExtraction, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestExtract_NoWritesThroughEscapingSymlink(t *testing.T) {
	tmp := t.TempDir()
	outside := filepath.Join(tmp, "outside")
	os.MkdirAll(outside, 0755)
	body := testutil.TarGz(t, map[string]string{
		"tensorflow-1.12.2/escape":      testutil.Symlink + outside,
		"tensorflow-1.12.2/escape/evil": "x",
	})
	archive := filepath.Join(tmp, "v1.12.2.tar.gz")
	os.WriteFile(archive, body, 0644)

	if _, err := Extract(archive, filepath.Join(tmp, "out"), "tensorflow-1.12.2"); !errors.Is(err, model.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "evil")); !os.IsNotExist(err) {
		t.Error("file written through a symlink leaving the tree")
	}
}

package toolchain

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOSRunner_CapturesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	tmp := t.TempDir()
	script := writeScript(t, tmp, "tool", "echo out; echo err 1>&2\n")

	var stream bytes.Buffer
	out, err := OSRunner{}.Run(context.Background(), Command{Dir: tmp, Name: script, Stream: &stream})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "out") || !strings.Contains(string(out), "err") {
		t.Errorf("expected combined output, got %q", out)
	}
	if stream.String() != string(out) {
		t.Errorf("stream %q differs from captured output %q", stream.String(), out)
	}
}

func TestOSRunner_FailureKeepsDiagnostic(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	tmp := t.TempDir()
	script := writeScript(t, tmp, "cc", "echo 'shim.cc:3:1: error: expected ;' 1>&2\nexit 3\n")

	_, err := OSRunner{}.Run(context.Background(), Command{Dir: tmp, Name: script, Args: []string{"-c", "shim.cc"}})
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected *ToolError, got %v", err)
	}
	if te.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", te.ExitCode)
	}
	if !strings.Contains(te.Error(), "shim.cc:3:1: error: expected ;") {
		t.Errorf("diagnostic not passed through verbatim: %q", te.Error())
	}
}

func TestOSRunner_SeparateStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	tmp := t.TempDir()
	script := writeScript(t, tmp, "clang", "echo '{}'; echo 'warning: unused' 1>&2\n")

	var stdout bytes.Buffer
	out, err := OSRunner{}.Run(context.Background(), Command{Name: script, Stdout: &stdout})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout.String() != "{}\n" {
		t.Errorf("stdout polluted: %q", stdout.String())
	}
	if !strings.Contains(string(out), "warning: unused") || strings.Contains(string(out), "{}") {
		t.Errorf("expected only stderr captured, got %q", out)
	}
}

func TestOSRunner_Env(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	tmp := t.TempDir()
	script := writeScript(t, tmp, "tool", "printf %s \"$LITEBIND_TEST\"\n")

	out, err := OSRunner{}.Run(context.Background(), Command{Name: script, Env: []string{"LITEBIND_TEST=hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("expected env to reach the tool, got %q", out)
	}
}

func TestResolve_ExplicitPath(t *testing.T) {
	tmp := t.TempDir()
	fakeExe := filepath.Join(tmp, "clang++")
	os.WriteFile(fakeExe, []byte("#!/bin/sh\n"), 0755)

	path, err := Resolve(fakeExe, "LITEBIND_CLANG", "clang++")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != fakeExe {
		t.Errorf("expected %q, got %q", fakeExe, path)
	}
}

func TestResolve_ExplicitPathNotFound(t *testing.T) {
	_, err := Resolve("/nonexistent/clang++", "LITEBIND_CLANG", "clang++")
	if err == nil {
		t.Error("expected error for nonexistent explicit path")
	}
}

func TestResolve_EnvVar(t *testing.T) {
	tmp := t.TempDir()
	fakeExe := filepath.Join(tmp, "clang++")
	os.WriteFile(fakeExe, []byte("#!/bin/sh\n"), 0755)

	t.Setenv("LITEBIND_CLANG", fakeExe)

	path, err := Resolve("", "LITEBIND_CLANG", "clang++")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != fakeExe {
		t.Errorf("expected %q, got %q", fakeExe, path)
	}
}

func TestResolve_ExplicitTakesPrecedence(t *testing.T) {
	tmp := t.TempDir()
	flagExe := filepath.Join(tmp, "clang_flag")
	envExe := filepath.Join(tmp, "clang_env")
	os.WriteFile(flagExe, []byte("#!/bin/sh\n"), 0755)
	os.WriteFile(envExe, []byte("#!/bin/sh\n"), 0755)

	t.Setenv("LITEBIND_CLANG", envExe)

	path, err := Resolve(flagExe, "LITEBIND_CLANG", "clang++")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != flagExe {
		t.Errorf("expected flag path %q to take precedence, got %q", flagExe, path)
	}
}

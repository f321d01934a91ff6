package resolver

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benn-herrera/litebind/internal/testutil"
	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/toolchain"
)

func loadFixture(t *testing.T, opts ParseOptions) ResolvedTypes {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", "tflite_ast.json"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	types, err := ParseAST(f, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return types
}

func TestParseAST_Kinds(t *testing.T) {
	types := loadFixture(t, ParseOptions{Skip: []string{"std"}})

	tests := []struct {
		name string
		kind TypeKind
		tag  string
	}{
		{"TfLiteStatus", TypeKindEnum, ""},
		{"TfLiteType", TypeKindEnum, ""},
		{"TfLiteAllocationType", TypeKindEnum, ""},
		{"TfLiteIntArray", TypeKindRecord, "struct"},
		{"TfLiteComplex64", TypeKindRecord, "struct"},
		{"TfLitePtrUnion", TypeKindRecord, "union"},
		{"TfLiteQuantizationParams", TypeKindRecord, "struct"},
		{"TfLiteTensor", TypeKindRecord, "struct"},
		{"TfLiteDelegate", TypeKindRecord, "struct"},
		{"_TfLiteDelegate", TypeKindRecord, "struct"},
		{"TfLiteBufferHandle", TypeKindTypedef, ""},
		{"tflite::Interpreter", TypeKindRecord, "class"},
		{"tflite::Interpreter::State", TypeKindEnum, ""},
		{"tflite::Interpreter::TfLiteDelegatePtr", TypeKindTypedef, ""},
		{"tflite::ops::builtin::BuiltinOpResolver", TypeKindRecord, "class"},
		{"tflite::OpResolver", TypeKindRecord, "class"},
	}
	for _, tt := range tests {
		info, ok := types[tt.name]
		if !ok {
			t.Errorf("expected type %q not found", tt.name)
			continue
		}
		if info.Kind != tt.kind {
			t.Errorf("expected %q to be %s, got %s", tt.name, tt.kind, info.Kind)
		}
		if info.Tag != tt.tag {
			t.Errorf("expected %q tag %q, got %q", tt.name, tt.tag, info.Tag)
		}
		if info.Name != tt.name {
			t.Errorf("expected info name %q, got %q", tt.name, info.Name)
		}
	}
}

func TestParseAST_Skips(t *testing.T) {
	types := loadFixture(t, ParseOptions{Skip: []string{"std"}})

	for _, name := range []string{"std::vector", "__int128_t", "Hidden", "tflite::Hidden"} {
		if _, ok := types[name]; ok {
			t.Errorf("%q should not be indexed", name)
		}
	}
	if _, ok := types[""]; ok {
		t.Error("anonymous declarations must not be indexed by empty name")
	}

	all := loadFixture(t, ParseOptions{})
	if _, ok := all["std::vector"]; !ok {
		t.Error("std::vector should be indexed when std is not skipped")
	}
}

func TestParseAST_EnumValues(t *testing.T) {
	types := loadFixture(t, ParseOptions{})

	tt := types["TfLiteType"]
	want := []string{"kTfLiteNoType", "kTfLiteFloat32", "kTfLiteInt32", "kTfLiteUInt8", "kTfLiteInt64",
		"kTfLiteString", "kTfLiteBool", "kTfLiteInt16", "kTfLiteComplex64"}
	if len(tt.EnumValues) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(tt.EnumValues))
	}
	for i, v := range tt.EnumValues {
		if v.Name != want[i] || v.Value != int64(i) {
			t.Errorf("value %d: got %s=%d, want %s=%d", i, v.Name, v.Value, want[i], i)
		}
	}

	state := types["tflite::Interpreter::State"]
	if state.Underlying != "int" {
		t.Errorf("expected fixed underlying int, got %q", state.Underlying)
	}
	if len(state.EnumValues) != 2 || state.EnumValues[1].Value != 1 {
		t.Errorf("unexpected State values %+v", state.EnumValues)
	}
}

func TestParseAST_Fields(t *testing.T) {
	types := loadFixture(t, ParseOptions{})

	tensor := types["TfLiteTensor"]
	if !tensor.Complete {
		t.Error("TfLiteTensor should be complete")
	}
	if len(tensor.Fields) != 12 {
		t.Fatalf("expected 12 fields, got %d", len(tensor.Fields))
	}
	bytes := tensor.Fields[5]
	if bytes.Name != "bytes" || bytes.Type != "size_t" || bytes.Desugared != "unsigned long" {
		t.Errorf("unexpected bytes field %+v", bytes)
	}

	arr := types["TfLiteIntArray"]
	if len(arr.Fields) != 2 || arr.Fields[1].Type != "int []" {
		t.Errorf("unexpected TfLiteIntArray fields %+v", arr.Fields)
	}

	h := types["TfLiteBufferHandle"]
	if h.Underlying != "int" {
		t.Errorf("expected TfLiteBufferHandle to alias int, got %q", h.Underlying)
	}
}

func TestParseAST_DefinitionWinsOverForwardDecl(t *testing.T) {
	types := loadFixture(t, ParseOptions{})
	interp := types["tflite::Interpreter"]
	if !interp.Complete {
		t.Error("expected the complete definition of tflite::Interpreter")
	}
	if len(interp.Fields) != 2 {
		t.Errorf("expected 2 fields, got %d", len(interp.Fields))
	}
	if ctx := types["TfLiteContext"]; ctx == nil || ctx.Complete {
		t.Errorf("TfLiteContext is only forward declared, got %+v", ctx)
	}
}

func TestParseAST_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not an object", `[]`},
		{"no inner", `{"kind":"TranslationUnitDecl"}`},
		{"inner not array", `{"kind":"TranslationUnitDecl","inner":{}}`},
		{"truncated", `{"kind":"TranslationUnitDecl","inner":[{"kind":"NamespaceDecl",`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseAST(strings.NewReader(tt.input), ParseOptions{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClangArgs(t *testing.T) {
	m := &model.Manifest{
		Defines:   []string{"GEMMLOWP_ALLOW_SLOW_SCALAR_FALLBACK"},
		ClangArgs: []string{"-fms-extensions"},
	}
	got := strings.Join(ClangArgs("/tf", "/out/shim/tflite_wrapper.hpp", m), " ")
	want := "-x c++ -std=c++11 -fsyntax-only -fms-extensions -DGEMMLOWP_ALLOW_SLOW_SCALAR_FALLBACK " +
		"-I/tf -I" + filepath.Join("/tf", "tensorflow/contrib/lite/tools/make/downloads/flatbuffers/include") +
		" -Xclang -ast-dump=json /out/shim/tflite_wrapper.hpp"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestClang_Resolve(t *testing.T) {
	fixture, err := os.ReadFile(filepath.Join("testdata", "tflite_ast.json"))
	if err != nil {
		t.Fatal(err)
	}
	rec := &testutil.Recorder{Handle: func(c toolchain.Command) ([]byte, error) {
		if c.Stdout == nil {
			return nil, errors.New("AST must be written to a dedicated stdout")
		}
		_, err := c.Stdout.Write(fixture)
		return []byte("warning: something on stderr\n"), err
	}}

	c := &Clang{Runner: rec, Path: "clang++", Log: testutil.Logger()}
	m := &model.Manifest{Blocklist: []string{"std", "tflite::Interpreter::State"}}
	types, err := c.Resolve(context.Background(), "/tf", "wrapper.hpp", m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := types["TfLiteTensor"]; !ok {
		t.Error("expected TfLiteTensor")
	}
	if _, ok := types["std::vector"]; ok {
		t.Error("blocklisted top-level namespace should be skipped")
	}
	if _, ok := types["tflite::Interpreter::State"]; !ok {
		t.Error("scoped blocklist entries are filtered at generation, not at parse")
	}
	if calls := rec.Calls(); len(calls) != 1 || calls[0].Dir != "/tf" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestClang_ResolveToolFailure(t *testing.T) {
	rec := &testutil.Recorder{Handle: func(c toolchain.Command) ([]byte, error) {
		io.WriteString(c.Stdout, "")
		return nil, &toolchain.ToolError{Command: c.String(), Output: []byte("fatal error: 'tensorflow/contrib/lite/interpreter.h' file not found"), Err: errors.New("exit status 1")}
	}}
	c := &Clang{Runner: rec, Path: "clang++", Log: testutil.Logger()}

	_, err := c.Resolve(context.Background(), "/tf", "wrapper.hpp", &model.Manifest{})
	var te *toolchain.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected *ToolError, got %v", err)
	}
	if !strings.Contains(err.Error(), "file not found") {
		t.Errorf("diagnostic not carried: %v", err)
	}
}

func TestResolveClang_Env(t *testing.T) {
	tmp := t.TempDir()
	fake := filepath.Join(tmp, "clang-17")
	os.WriteFile(fake, []byte("#!/bin/sh\n"), 0755)
	t.Setenv(ClangEnv, fake)

	got, err := ResolveClang("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != fake {
		t.Errorf("expected %q, got %q", fake, got)
	}
}

package model

import (
	"strings"
	"unicode"
)

// Project is the top-level structure of a litebind.yaml file.
type Project struct {
	Release  Release     `yaml:"release"`
	Build    BuildConfig `yaml:"build"`
	Bindings Manifest    `yaml:"bindings"`
}

// BuildConfig holds the native build settings that may also come from the
// environment.
type BuildConfig struct {
	OutputDir   string `yaml:"output_dir,omitempty"`
	OS          string `yaml:"os,omitempty"`
	Arch        string `yaml:"arch,omitempty"`
	Parallelism string `yaml:"parallelism,omitempty"` // integer or "auto"
	Debug       bool   `yaml:"debug,omitempty"`
	Clang       string `yaml:"clang,omitempty"`
	CXX         string `yaml:"cxx,omitempty"`
	AR          string `yaml:"ar,omitempty"`
}

// Manifest is the curated allow/deny list of native names exposed to Go.
type Manifest struct {
	Package   string      `yaml:"package"`
	Header    string      `yaml:"header,omitempty"`
	Std       string      `yaml:"std,omitempty"`
	Defines   []string    `yaml:"defines,omitempty"`
	ClangArgs []string    `yaml:"clang_args,omitempty"`
	Types     []TypeEntry `yaml:"types"`
	Blocklist []string    `yaml:"blocklist,omitempty"`
}

// TypeEntry is a single allow-listed native type.
type TypeEntry struct {
	Name   string `yaml:"name"`
	Opaque bool   `yaml:"opaque,omitempty"`
}

// DefaultStd is the language standard TensorFlow Lite 1.12 requires.
const DefaultStd = "c++11"

// EffectiveStd returns the configured language standard or DefaultStd.
func (m *Manifest) EffectiveStd() string {
	if m.Std != "" {
		return m.Std
	}
	return DefaultStd
}

// EntryByName looks up an allow-listed type by qualified name.
func (m *Manifest) EntryByName(name string) *TypeEntry {
	for i := range m.Types {
		if m.Types[i].Name == name {
			return &m.Types[i]
		}
	}
	return nil
}

// IsBlocked reports whether name, or a scope enclosing it, is blocklisted.
// "std" blocks "std::vector" but not "stdio".
func (m *Manifest) IsBlocked(name string) bool {
	for _, b := range m.Blocklist {
		if name == b || strings.HasPrefix(name, b+"::") {
			return true
		}
	}
	return false
}

// GoTypeName converts a qualified C++ name to an exported Go identifier.
// e.g., "tflite::ops::builtin::BuiltinOpResolver" → "Tflite_Ops_Builtin_BuiltinOpResolver"
//
//	"TfLiteTensor" → "TfLiteTensor"
func GoTypeName(qualified string) string {
	parts := strings.Split(qualified, "::")
	for i, p := range parts {
		parts[i] = upperFirst(p)
	}
	return strings.Join(parts, "_")
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

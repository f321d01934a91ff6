// Package csrc embeds the native sources litebind writes into the build
// output: the wrapper header clang parses for type declarations and the
// extern "C" shim compiled against the static library.
package csrc

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"path/filepath"

	"github.com/benn-herrera/litebind/cache"
)

// File names as written into the shim directory.
const (
	WrapperName = "tflite_wrapper.hpp"
	ShimName    = "tflite_shim.cc"
	ShimHeader  = "tflite_shim.h"
	ShimObject  = "tflite_shim.o"
)

//go:embed src/tflite_wrapper.hpp
var wrapper []byte

//go:embed src/tflite_shim.cc
var shim []byte

//go:embed src/tflite_shim.h
var shimHeader []byte

// Header returns the C declarations of the shim, for cgo preambles.
func Header() []byte { return shimHeader }

// Sources maps each shim file name to its content.
func Sources() map[string][]byte {
	return map[string][]byte{
		WrapperName: wrapper,
		ShimName:    shim,
		ShimHeader:  shimHeader,
	}
}

// WriteTo writes every source into dir. Copies that are already current
// are left alone.
func WriteTo(dir string) error {
	for _, name := range []string{WrapperName, ShimName, ShimHeader} {
		if _, err := cache.WriteFileIfChanged(filepath.Join(dir, name), Sources()[name], 0644); err != nil {
			return err
		}
	}
	return nil
}

// Fingerprint hashes the embedded sources, for cache keys.
func Fingerprint() string {
	h := sha256.New()
	for _, b := range [][]byte{wrapper, shim, shimHeader} {
		h.Write(b)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

package gen

import (
	"strings"
)

// ToPascalCase converts a snake_case string to PascalCase.
// Leading, trailing and doubled underscores are dropped.
// e.g., "zero_point" → "ZeroPoint", "data_" → "Data"
func ToPascalCase(s string) string {
	parts := strings.Split(s, "_")
	var result strings.Builder
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}
		result.WriteString(strings.ToUpper(part[:1]))
		if len(part) > 1 {
			result.WriteString(part[1:])
		}
	}
	return result.String()
}

// scopeOf returns the enclosing scope of a qualified name.
// e.g., "tflite::Interpreter::State" → "tflite::Interpreter"
func scopeOf(qualified string) string {
	if i := strings.LastIndex(qualified, "::"); i >= 0 {
		return qualified[:i]
	}
	return ""
}

// generatedHeader is the first line of every generated Go file.
func generatedHeader(w *strings.Builder, ctx *Context) {
	w.WriteString("// Code generated by litebind. DO NOT EDIT.\n")
	if ctx.Release != nil && ctx.Release.Version != "" {
		w.WriteString("// Source: TensorFlow Lite " + ctx.Release.Version + "\n")
	}
	w.WriteString("\n")
}

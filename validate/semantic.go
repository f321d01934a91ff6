package validate

import (
	"fmt"
	"go/token"
	"strings"

	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/resolver"
)

// ValidationError represents a single semantic validation error.
type ValidationError struct {
	Path    string // e.g., "bindings.types[3].name"
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationResult holds all validation errors.
type ValidationResult struct {
	Errors []ValidationError
}

func (r *ValidationResult) addError(path, message string) {
	r.Errors = append(r.Errors, ValidationError{Path: path, Message: message})
}

func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) Error() string {
	if r.IsValid() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "\n")
}

// Validate performs semantic validation on a binding manifest.
// resolvedTypes may be nil if the headers have not been parsed yet (skips
// type resolution checks).
func Validate(m *model.Manifest, resolvedTypes resolver.ResolvedTypes) *ValidationResult {
	result := &ValidationResult{}

	if !token.IsIdentifier(m.Package) || token.IsKeyword(m.Package) {
		result.addError("bindings.package", fmt.Sprintf("%q is not a valid Go package name", m.Package))
	}
	if len(m.Types) == 0 {
		result.addError("bindings.types", "at least one type must be allow-listed")
	}

	seen := make(map[string]bool)
	goNames := make(map[string]string)
	for i, entry := range m.Types {
		path := fmt.Sprintf("bindings.types[%d].name", i)

		if seen[entry.Name] {
			result.addError(path, fmt.Sprintf("duplicate type %q", entry.Name))
			continue
		}
		seen[entry.Name] = true

		goName := model.GoTypeName(entry.Name)
		if other, ok := goNames[goName]; ok {
			result.addError(path, fmt.Sprintf("%q and %q both map to Go type %s", other, entry.Name, goName))
		}
		goNames[goName] = entry.Name

		if m.IsBlocked(entry.Name) {
			result.addError(path, fmt.Sprintf("type %q is both allow-listed and blocklisted", entry.Name))
		}

		if resolvedTypes == nil {
			continue
		}
		info, ok := resolvedTypes[entry.Name]
		if !ok {
			result.addError(path, fmt.Sprintf("type %q not declared by the parsed headers", entry.Name))
			continue
		}
		if entry.Opaque {
			continue
		}
		switch info.Kind {
		case resolver.TypeKindRecord, resolver.TypeKindEnum:
			if !info.Complete {
				result.addError(path, fmt.Sprintf("type %q is only forward declared; mark it opaque", entry.Name))
			}
		case resolver.TypeKindTypedef:
			if strings.Contains(info.Underlying, "<") {
				result.addError(path, fmt.Sprintf("type %q aliases template %q; mark it opaque or blocklist it", entry.Name, info.Underlying))
			}
		}
	}

	blocked := make(map[string]bool)
	for i, b := range m.Blocklist {
		if blocked[b] {
			result.addError(fmt.Sprintf("bindings.blocklist[%d]", i), fmt.Sprintf("duplicate blocklist entry %q", b))
		}
		blocked[b] = true
	}

	return result
}

package gen

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/resolver"
)

// builtinGoTypes maps C and C++ scalar spellings onto Go types of the same
// size on LP64 targets.
var builtinGoTypes = map[string]string{
	"bool":  "bool",
	"_Bool": "bool",

	"char":          "byte",
	"signed char":   "int8",
	"unsigned char": "uint8",

	"short":              "int16",
	"short int":          "int16",
	"unsigned short":     "uint16",
	"unsigned short int": "uint16",

	"int":          "int32",
	"signed":       "int32",
	"signed int":   "int32",
	"unsigned":     "uint32",
	"unsigned int": "uint32",

	"long":                   "int64",
	"long int":               "int64",
	"unsigned long":          "uint64",
	"unsigned long int":      "uint64",
	"long long":              "int64",
	"long long int":          "int64",
	"unsigned long long":     "uint64",
	"unsigned long long int": "uint64",

	"float":  "float32",
	"double": "float64",

	"int8_t":    "int8",
	"int16_t":   "int16",
	"int32_t":   "int32",
	"int64_t":   "int64",
	"uint8_t":   "uint8",
	"uint16_t":  "uint16",
	"uint32_t":  "uint32",
	"uint64_t":  "uint64",
	"size_t":    "uintptr",
	"uintptr_t": "uintptr",
	"intptr_t":  "int",
	"ptrdiff_t": "int",
	"ssize_t":   "int",
}

// goAlign is the LP64 alignment of the Go types builtinGoTypes produces.
var goAlign = map[string]int{
	"bool": 1, "byte": 1, "int8": 1, "uint8": 1,
	"int16": 2, "uint16": 2,
	"int32": 4, "uint32": 4, "float32": 4,
	"int64": 8, "uint64": 8, "float64": 8, "int": 8, "uintptr": 8,
}

const pointerAlign = 8

var (
	qualifierRe = regexp.MustCompile(`\b(const|volatile|restrict|struct|union|enum|class)\b`)
	spaceRe     = regexp.MustCompile(`\s+`)
	arrayRe     = regexp.MustCompile(`^([^\[]*?)\s*\[(\d*)\](.*)$`)
)

// normalizeType drops qualifiers and elaborated keywords and collapses
// spacing. e.g., "const struct _TfLiteDelegate *" → "_TfLiteDelegate*"
func normalizeType(s string) string {
	s = qualifierRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " *", "*")
	s = strings.ReplaceAll(s, " &", "&")
	return s
}

// goType is a native type mapped to Go.
type goType struct {
	Expr  string   // Go type expression
	Size  int      // LP64 size in bytes
	Align int      // LP64 alignment in bytes
	Deps  []string // native names embedded by value

	// Flexible is set for arrays declared without a length (or with
	// length zero). Elem is their element type.
	Flexible bool
	Elem     string
}

func (t goType) isPointer() bool {
	return strings.HasPrefix(t.Expr, "*") || t.Expr == "unsafe.Pointer"
}

var unsafePointer = goType{Expr: "unsafe.Pointer", Size: pointerAlign, Align: pointerAlign}

func pointerTo(expr string) goType {
	return goType{Expr: "*" + expr, Size: pointerAlign, Align: pointerAlign}
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// typeMapper maps clang type spellings onto Go type expressions.
type typeMapper struct {
	manifest *model.Manifest
	types    resolver.ResolvedTypes
}

// lookup resolves name the way C++ name lookup would from scope, innermost
// scope first. Clang prints member types relative to where they are written.
func (tm *typeMapper) lookup(name, scope string) (string, *resolver.TypeInfo) {
	name = strings.TrimPrefix(name, "::")
	for s := scope; s != ""; s = scopeOf(s) {
		if info, ok := tm.types[s+"::"+name]; ok {
			return s + "::" + name, info
		}
	}
	if info, ok := tm.types[name]; ok {
		return name, info
	}
	return name, nil
}

// mapType maps a field or typedef type written inside scope.
func (tm *typeMapper) mapType(qual, desugared, scope string) (goType, error) {
	s := normalizeType(qual)
	if s == "" {
		return goType{}, fmt.Errorf("empty type")
	}

	if strings.Contains(s, "(") && !strings.Contains(s, "<") {
		if strings.Contains(s, "(*") {
			return unsafePointer, nil
		}
		return goType{}, fmt.Errorf("function type %q cannot be a data member", qual)
	}

	if m := arrayRe.FindStringSubmatch(s); m != nil {
		elem, err := tm.mapType(m[1]+m[3], arrayElem(desugared), scope)
		if err != nil {
			return goType{}, err
		}
		n := 0
		if m[2] != "" {
			if n, err = strconv.Atoi(m[2]); err != nil {
				return goType{}, fmt.Errorf("array length in %q: %w", qual, err)
			}
		}
		return goType{
			Expr:     "[" + strconv.Itoa(n) + "]" + elem.Expr,
			Size:     n * elem.Size,
			Align:    elem.Align,
			Deps:     elem.Deps,
			Flexible: n == 0,
			Elem:     elem.Expr,
		}, nil
	}

	if strings.HasSuffix(s, "*") || strings.HasSuffix(s, "&") {
		return tm.pointer(strings.TrimSpace(s[:len(s)-1]), scope), nil
	}

	if g, ok := builtinGoTypes[s]; ok {
		return goType{Expr: g, Size: goAlign[g], Align: goAlign[g]}, nil
	}

	name, info := tm.lookup(s, scope)
	if info == nil || tm.manifest.IsBlocked(name) || strings.Contains(s, "<") {
		// A scalar typedef that is out of reach still has a usable
		// desugared spelling.
		if desugared != "" && normalizeType(desugared) != s {
			if t, err := tm.mapType(desugared, "", scope); err == nil {
				return t, nil
			}
		}
		switch {
		case strings.Contains(s, "<"):
			return goType{}, fmt.Errorf("template type %q cannot be embedded by value", qual)
		case info != nil:
			return goType{}, fmt.Errorf("%s is blocklisted and cannot be embedded by value", name)
		default:
			return goType{}, fmt.Errorf("unknown type %q", qual)
		}
	}

	if e := tm.manifest.EntryByName(name); e != nil && e.Opaque {
		return goType{}, fmt.Errorf("%s is opaque and cannot be embedded by value", name)
	}
	if info.Kind == resolver.TypeKindRecord && !info.Complete {
		return goType{}, fmt.Errorf("%s is incomplete and cannot be embedded by value", name)
	}
	size, align := tm.layout(name)
	return goType{Expr: model.GoTypeName(name), Size: size, Align: align, Deps: []string{name}}, nil
}

// pointer maps a pointer to base. Pointers to allow-listed types stay typed;
// everything else the bindings do not describe becomes unsafe.Pointer.
func (tm *typeMapper) pointer(base, scope string) goType {
	if base == "void" {
		return unsafePointer
	}
	if strings.HasSuffix(base, "*") || strings.HasSuffix(base, "&") {
		return pointerTo(tm.pointer(strings.TrimSpace(base[:len(base)-1]), scope).Expr)
	}
	if g, ok := builtinGoTypes[base]; ok {
		return pointerTo(g)
	}
	if strings.ContainsAny(base, "<([") {
		return unsafePointer
	}

	name, info := tm.lookup(base, scope)
	if info == nil || tm.manifest.IsBlocked(name) {
		return unsafePointer
	}
	if tm.manifest.EntryByName(name) != nil {
		return pointerTo(model.GoTypeName(name))
	}
	if info.Kind == resolver.TypeKindTypedef {
		if g, ok := builtinGoTypes[normalizeType(firstNonEmpty(info.Desugared, info.Underlying))]; ok {
			return pointerTo(g)
		}
	}
	return unsafePointer
}

// layout computes the LP64 size and alignment of a named native type the
// way a C compiler lays it out. Records cannot contain themselves by value,
// so the recursion through mapType ends.
func (tm *typeMapper) layout(name string) (size, align int) {
	info := tm.types[name]
	if info == nil {
		return pointerAlign, pointerAlign
	}
	switch info.Kind {
	case resolver.TypeKindEnum:
		a := goAlign[enumGoType(info)]
		return a, a
	case resolver.TypeKindTypedef:
		t, err := tm.mapType(info.Underlying, info.Desugared, scopeOf(name))
		if err != nil {
			return pointerAlign, pointerAlign
		}
		return t.Size, t.Align
	}

	fields := make([]goType, 0, len(info.Fields))
	for _, f := range info.Fields {
		if t, err := tm.mapType(f.Type, f.Desugared, name); err == nil {
			fields = append(fields, t)
		}
	}
	if info.IsUnion() {
		return unionLayout(fields)
	}
	_, size, align = recordLayout(fields)
	return size, align
}

// recordLayout places fields in declaration order and returns their
// offsets with the padded size and alignment of the whole record.
func recordLayout(fields []goType) (offsets []int, size, align int) {
	align = 1
	offsets = make([]int, len(fields))
	for i, f := range fields {
		align = max(align, f.Align)
		size = roundUp(size, f.Align)
		offsets[i] = size
		size += f.Size
	}
	return offsets, roundUp(size, align), align
}

func unionLayout(fields []goType) (size, align int) {
	align = 1
	for _, f := range fields {
		align = max(align, f.Align)
		size = max(size, f.Size)
	}
	return roundUp(size, align), align
}

// enumGoType picks the Go integer type for an enum: the fixed underlying
// type if declared, otherwise the smallest of int32, uint32 and int64 that
// holds every value.
func enumGoType(info *resolver.TypeInfo) string {
	if info.Underlying != "" {
		if g, ok := builtinGoTypes[normalizeType(info.Underlying)]; ok {
			return g
		}
	}
	var lo, hi int64
	for _, v := range info.EnumValues {
		lo = min(lo, v.Value)
		hi = max(hi, v.Value)
	}
	switch {
	case lo >= math.MinInt32 && hi <= math.MaxInt32:
		return "int32"
	case lo >= 0 && hi <= math.MaxUint32:
		return "uint32"
	default:
		return "int64"
	}
}

func arrayElem(desugared string) string {
	m := arrayRe.FindStringSubmatch(normalizeType(desugared))
	if m == nil {
		return ""
	}
	return m[1] + m[3]
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

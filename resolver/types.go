package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TypeKind represents the kind of a native type declaration.
type TypeKind int

const (
	TypeKindRecord TypeKind = iota
	TypeKindEnum
	TypeKindTypedef
)

func (k TypeKind) String() string {
	switch k {
	case TypeKindRecord:
		return "record"
	case TypeKindEnum:
		return "enum"
	case TypeKindTypedef:
		return "typedef"
	default:
		return "unknown"
	}
}

// EnumValue represents a single enumerator.
type EnumValue struct {
	Name  string
	Value int64
}

// FieldDef represents a single data member of a record.
type FieldDef struct {
	Name      string
	Type      string // clang qualType, e.g. "TfLiteIntArray *"
	Desugared string // desugaredQualType when clang reports one
	Bitfield  bool
}

// TypeInfo holds what the generator needs to know about one declaration.
type TypeInfo struct {
	Name       string // qualified, e.g. "tflite::Interpreter"
	Kind       TypeKind
	Tag        string // records: "struct", "class" or "union"
	Complete   bool   // records and enums: a definition was seen
	Fields     []FieldDef
	EnumValues []EnumValue
	Underlying string // enums: fixed underlying type; typedefs: aliased type
	Desugared  string // typedefs: fully desugared aliased type
}

// IsUnion reports whether the record is a C union.
func (t *TypeInfo) IsUnion() bool { return t.Kind == TypeKindRecord && t.Tag == "union" }

// ResolvedTypes maps qualified native type names to their declarations.
type ResolvedTypes map[string]*TypeInfo

// node mirrors the subset of clang's JSON AST that type resolution reads.
type node struct {
	ID                  string          `json:"id"`
	Kind                string          `json:"kind"`
	Name                string          `json:"name"`
	TagUsed             string          `json:"tagUsed"`
	CompleteDefinition  bool            `json:"completeDefinition"`
	IsImplicit          bool            `json:"isImplicit"`
	IsBitfield          bool            `json:"isBitfield"`
	Type                *qualType       `json:"type"`
	FixedUnderlyingType *qualType       `json:"fixedUnderlyingType"`
	Value               json.RawMessage `json:"value"` // string, number or bool depending on Kind
	OwnedTagDecl        *declRef        `json:"ownedTagDecl"`
	Decl                *declRef        `json:"decl"`
	Inner               []*node         `json:"inner"`
}

type qualType struct {
	QualType          string `json:"qualType"`
	DesugaredQualType string `json:"desugaredQualType"`
}

type declRef struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// header is decoded first for every top-level declaration so that whole
// skipped namespaces are never materialized.
type header struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// ParseOptions tune AST indexing.
type ParseOptions struct {
	// Skip lists top-level namespaces that are not indexed at all.
	Skip []string
}

// ParseAST reads the output of `clang -Xclang -ast-dump=json` and indexes
// records, enums and typedefs by qualified name. Top-level declarations are
// decoded one at a time.
func ParseAST(r io.Reader, opts ParseOptions) (ResolvedTypes, error) {
	dec := json.NewDecoder(r)
	if err := enterInner(dec); err != nil {
		return nil, err
	}

	p := &parser{types: make(ResolvedTypes), byID: map[string]*TypeInfo{}}
	skip := map[string]bool{}
	for _, s := range opts.Skip {
		skip[s] = true
	}

	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decoding AST: %w", err)
		}
		var h header
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("decoding AST: %w", err)
		}
		if h.Kind == "NamespaceDecl" && skip[h.Name] {
			continue
		}
		var n node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decoding %s %s: %w", h.Kind, h.Name, err)
		}
		p.visit(&n, "")
	}
	return p.types, nil
}

// enterInner advances dec to the first element of the translation unit's
// "inner" array.
func enterInner(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading AST: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("AST does not start with a translation unit object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading AST: %w", err)
		}
		key, _ := tok.(string)
		if key != "inner" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fmt.Errorf("reading AST: %w", err)
			}
			continue
		}
		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("reading AST: %w", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return errors.New("translation unit inner is not an array")
		}
		return nil
	}
	return errors.New("translation unit has no declarations")
}

type parser struct {
	types ResolvedTypes
	byID  map[string]*TypeInfo
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "::" + name
}

func (p *parser) visit(n *node, scope string) {
	if n.IsImplicit {
		return
	}
	switch n.Kind {
	case "NamespaceDecl":
		if n.Name == "" {
			// Anonymous namespaces have internal linkage.
			return
		}
		for _, c := range n.Inner {
			p.visit(c, qualify(scope, n.Name))
		}
	case "LinkageSpecDecl":
		for _, c := range n.Inner {
			p.visit(c, scope)
		}
	case "CXXRecordDecl", "RecordDecl":
		p.record(n, scope)
	case "EnumDecl":
		p.enum(n, scope)
	case "TypedefDecl", "TypeAliasDecl":
		p.typedef(n, scope)
	}
}

// store indexes info under its name, keeping a definition over a forward
// declaration.
func (p *parser) store(info *TypeInfo) {
	if info.Name == "" {
		return
	}
	if prev, ok := p.types[info.Name]; ok && prev.Complete && !info.Complete {
		return
	}
	p.types[info.Name] = info
}

func (p *parser) record(n *node, scope string) {
	info := &TypeInfo{
		Name:     qualify(scope, n.Name),
		Kind:     TypeKindRecord,
		Tag:      n.TagUsed,
		Complete: n.CompleteDefinition,
	}
	if n.Name == "" {
		info.Name = ""
	}

	for _, c := range n.Inner {
		switch c.Kind {
		case "FieldDecl":
			f := FieldDef{Name: c.Name, Bitfield: c.IsBitfield}
			if c.Type != nil {
				f.Type = c.Type.QualType
				f.Desugared = c.Type.DesugaredQualType
			}
			info.Fields = append(info.Fields, f)
		case "CXXRecordDecl", "RecordDecl", "EnumDecl", "TypedefDecl", "TypeAliasDecl":
			if n.Name != "" {
				p.visit(c, info.Name)
			} else {
				p.visit(c, scope)
			}
		}
	}

	if n.ID != "" {
		p.byID[n.ID] = info
	}
	p.store(info)
}

func (p *parser) enum(n *node, scope string) {
	info := &TypeInfo{
		Name:     qualify(scope, n.Name),
		Kind:     TypeKindEnum,
		Complete: len(n.Inner) > 0,
	}
	if n.Name == "" {
		info.Name = ""
	}
	if n.FixedUnderlyingType != nil {
		info.Underlying = n.FixedUnderlyingType.QualType
	}

	var next int64
	for _, c := range n.Inner {
		if c.Kind != "EnumConstantDecl" {
			continue
		}
		if v, ok := constantValue(c); ok {
			next = v
		}
		info.EnumValues = append(info.EnumValues, EnumValue{Name: c.Name, Value: next})
		next++
	}

	if n.ID != "" {
		p.byID[n.ID] = info
	}
	p.store(info)
}

// constantValue finds the evaluated initializer of an enumerator. Clang
// reports it as "value" on a ConstantExpr or literal below the constant.
func constantValue(n *node) (int64, bool) {
	for _, c := range n.Inner {
		if v, ok := integerValue(c.Value); ok {
			return v, true
		}
		if v, ok := constantValue(c); ok {
			return v, true
		}
	}
	return 0, false
}

func integerValue(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return int64(v), true
	}
	return 0, false
}

func (p *parser) typedef(n *node, scope string) {
	name := qualify(scope, n.Name)

	// typedef struct {...} Name; and typedef enum {...} Name; name the
	// tag declaration itself.
	if target := p.tagRef(n); target != nil {
		alias := *target
		alias.Name = name
		p.store(&alias)
		return
	}

	info := &TypeInfo{Name: name, Kind: TypeKindTypedef, Complete: true}
	if n.Type != nil {
		info.Underlying = n.Type.QualType
		info.Desugared = n.Type.DesugaredQualType
	}
	p.store(info)
}

// tagRef returns the record or enum a typedef names directly, if any.
// Pointers to a tag and other derived types do not count.
func (p *parser) tagRef(n *node) *TypeInfo {
	if n.Type != nil && strings.ContainsAny(n.Type.QualType, "*&[(") {
		return nil
	}
	var walk func(*node) *TypeInfo
	walk = func(c *node) *TypeInfo {
		switch c.Kind {
		case "PointerType", "LValueReferenceType", "RValueReferenceType",
			"ConstantArrayType", "IncompleteArrayType", "FunctionProtoType":
			return nil
		}
		for _, ref := range []*declRef{c.OwnedTagDecl, c.Decl} {
			if ref == nil {
				continue
			}
			if info, ok := p.byID[ref.ID]; ok {
				return info
			}
		}
		for _, cc := range c.Inner {
			if info := walk(cc); info != nil {
				return info
			}
		}
		return nil
	}
	for _, c := range n.Inner {
		if info := walk(c); info != nil {
			return info
		}
	}
	return nil
}

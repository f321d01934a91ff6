package gen

import (
	"fmt"
	"go/format"
	"strings"

	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/resolver"
)

// TypesFile is the name of the generated type declarations.
const TypesFile = "tflite_types.go"

type goTypesGenerator struct{}

func init() {
	Register("gotypes", func() Generator { return &goTypesGenerator{} })
}

func (g *goTypesGenerator) Name() string { return "gotypes" }

func (g *goTypesGenerator) Generate(ctx *Context) ([]*OutputFile, error) {
	src, err := GenerateTypes(ctx)
	if err != nil {
		return nil, err
	}
	return []*OutputFile{{Path: TypesFile, Content: src}}, nil
}

// GenerateTypes renders Go declarations for every allow-listed type, in
// manifest order, followed by the types they embed by value. The result is
// gofmt'd.
func GenerateTypes(ctx *Context) ([]byte, error) {
	if ctx.Manifest == nil {
		return nil, fmt.Errorf("no bindings manifest")
	}
	if len(ctx.ResolvedTypes) == 0 {
		return nil, fmt.Errorf("no resolved native types")
	}

	e := &emitter{
		tm:      &typeMapper{manifest: ctx.Manifest, types: ctx.ResolvedTypes},
		seen:    map[string]bool{},
		goNames: map[string]string{},
	}
	for _, entry := range ctx.Manifest.Types {
		e.seen[entry.Name] = true
		e.queue = append(e.queue, pending{name: entry.Name, opaque: entry.Opaque})
	}
	for i := 0; i < len(e.queue); i++ {
		if err := e.emit(e.queue[i]); err != nil {
			return nil, err
		}
	}

	var b strings.Builder
	generatedHeader(&b, ctx)
	fmt.Fprintf(&b, "package %s\n\n", ctx.Manifest.Package)
	body := e.body.String()
	if strings.Contains(body, "unsafe.") {
		b.WriteString("import \"unsafe\"\n\n")
	}
	b.WriteString(body)

	out, err := format.Source([]byte(b.String()))
	if err != nil {
		return nil, fmt.Errorf("formatting generated types: %w", err)
	}
	return out, nil
}

type pending struct {
	name   string
	opaque bool
	by     string // declaration that embeds a dependent
}

type emitter struct {
	tm      *typeMapper
	queue   []pending
	seen    map[string]bool
	goNames map[string]string // Go name → native name
	body    strings.Builder
	current string
}

// depend queues a type embedded by value that the manifest does not list.
func (e *emitter) depend(name string) {
	if e.seen[name] {
		return
	}
	e.seen[name] = true
	e.queue = append(e.queue, pending{name: name, by: e.current})
}

func (e *emitter) emit(p pending) error {
	info, ok := e.tm.types[p.name]
	if !ok {
		return fmt.Errorf("%s was not found in the parsed headers", p.name)
	}
	goName := model.GoTypeName(p.name)
	if prev, ok := e.goNames[goName]; ok {
		return fmt.Errorf("%s and %s both map to Go type %s", prev, p.name, goName)
	}
	e.goNames[goName] = p.name
	e.current = p.name

	if p.opaque {
		if info.Kind != resolver.TypeKindRecord {
			return fmt.Errorf("%s is a %s; only records can be opaque", p.name, info.Kind)
		}
		fmt.Fprintf(&e.body, "// %s is an opaque handle to the native %s %s.\n", goName, info.Tag, p.name)
		fmt.Fprintf(&e.body, "type %s struct{ _ [0]byte }\n\n", goName)
		return nil
	}

	doc := func(what string) {
		fmt.Fprintf(&e.body, "// %s mirrors the native %s %s.", goName, what, p.name)
		if p.by != "" {
			fmt.Fprintf(&e.body, " It is embedded by value in %s.", p.by)
		}
		e.body.WriteString("\n")
	}

	switch info.Kind {
	case resolver.TypeKindEnum:
		doc("enum")
		return e.enum(goName, info)
	case resolver.TypeKindTypedef:
		doc("typedef")
		return e.typedef(goName, info)
	}

	if !info.Complete {
		return fmt.Errorf("%s is only forward declared; mark it opaque", p.name)
	}
	doc(info.Tag)
	if info.IsUnion() {
		return e.union(goName, info)
	}
	return e.record(goName, info)
}

type goField struct {
	name string
	typ  goType
}

func (e *emitter) fields(info *resolver.TypeInfo) ([]goField, error) {
	if len(info.Fields) == 0 {
		return nil, fmt.Errorf("%s has no data members to mirror; mark it opaque", info.Name)
	}
	used := map[string]string{}
	out := make([]goField, 0, len(info.Fields))
	for _, f := range info.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%s has an anonymous member", info.Name)
		}
		if f.Bitfield {
			return nil, fmt.Errorf("%s.%s is a bitfield, which has no Go layout", info.Name, f.Name)
		}
		name := ToPascalCase(f.Name)
		if name == "" {
			return nil, fmt.Errorf("%s.%s has no usable Go name", info.Name, f.Name)
		}
		if prev, ok := used[name]; ok {
			return nil, fmt.Errorf("%s members %s and %s both map to Go field %s", info.Name, prev, f.Name, name)
		}
		used[name] = f.Name

		t, err := e.tm.mapType(f.Type, f.Desugared, info.Name)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", info.Name, f.Name, err)
		}
		for _, d := range t.Deps {
			e.depend(d)
		}
		out = append(out, goField{name: name, typ: t})
	}
	return out, nil
}

// record mirrors a C struct. A trailing flexible array member has no Go
// field; a zero-size field at the end of a Go struct would grow it. Its
// elements are reached through an accessor instead.
func (e *emitter) record(goName string, info *resolver.TypeInfo) error {
	fields, err := e.fields(info)
	if err != nil {
		return err
	}
	var flex *goField
	if last := fields[len(fields)-1]; last.typ.Flexible {
		flex = &last
	}

	types := make([]goType, len(fields))
	for i, f := range fields {
		types[i] = f.typ
	}
	offsets, _, align := recordLayout(types)

	fmt.Fprintf(&e.body, "type %s struct {\n", goName)
	if flex != nil {
		fields = fields[:len(fields)-1]
		if _, _, rest := recordLayout(types[:len(fields)]); len(fields) == 0 || rest < align {
			// Carries the element alignment without taking space.
			fmt.Fprintf(&e.body, "\t_ [0]%s\n", flex.typ.Elem)
		}
	}
	for _, f := range fields {
		fmt.Fprintf(&e.body, "\t%s %s\n", f.name, f.typ.Expr)
	}
	e.body.WriteString("}\n\n")

	if flex != nil {
		off := offsets[len(offsets)-1]
		fmt.Fprintf(&e.body, "// %s points at the first element of the flexible array member.\n", flex.name)
		fmt.Fprintf(&e.body, "func (s *%s) %s() *%s { return (*%s)(unsafe.Add(unsafe.Pointer(s), %d)) }\n\n",
			goName, flex.name, flex.typ.Elem, flex.typ.Elem, off)
	}
	return nil
}

// union lays a C union out as storage for its most aligned member padded to
// the size of the union. Members are reached through accessors.
func (e *emitter) union(goName string, info *resolver.TypeInfo) error {
	fields, err := e.fields(info)
	if err != nil {
		return err
	}

	// Prefer non-pointer storage so the collector never sees an integer
	// member as a pointer.
	storage := 0
	types := make([]goType, len(fields))
	for i, f := range fields {
		types[i] = f.typ
		s := fields[storage].typ
		if f.typ.Align > s.Align || (f.typ.Align == s.Align && s.isPointer() && !f.typ.isPointer()) {
			storage = i
		}
	}
	size, _ := unionLayout(types)

	fmt.Fprintf(&e.body, "type %s struct {\n", goName)
	fmt.Fprintf(&e.body, "\tstorage %s\n", fields[storage].typ.Expr)
	if pad := size - fields[storage].typ.Size; pad > 0 {
		fmt.Fprintf(&e.body, "\t_ [%d]byte\n", pad)
	}
	e.body.WriteString("}\n\n")

	for _, f := range fields {
		fmt.Fprintf(&e.body, "// %s points at the %s member of u.\n", f.name, f.name)
		fmt.Fprintf(&e.body, "func (u *%s) %s() *%s { return (*%s)(unsafe.Pointer(u)) }\n\n",
			goName, f.name, f.typ.Expr, f.typ.Expr)
	}
	return nil
}

func (e *emitter) enum(goName string, info *resolver.TypeInfo) error {
	fmt.Fprintf(&e.body, "type %s %s\n\n", goName, enumGoType(info))
	if len(info.EnumValues) == 0 {
		return nil
	}
	e.body.WriteString("const (\n")
	for _, v := range info.EnumValues {
		fmt.Fprintf(&e.body, "\t%s_%s %s = %d\n", goName, v.Name, goName, v.Value)
	}
	e.body.WriteString(")\n\n")
	return nil
}

func (e *emitter) typedef(goName string, info *resolver.TypeInfo) error {
	t, err := e.tm.mapType(info.Underlying, info.Desugared, scopeOf(info.Name))
	if err != nil {
		return fmt.Errorf("typedef %s: %w", info.Name, err)
	}
	for _, d := range t.Deps {
		e.depend(d)
	}
	fmt.Fprintf(&e.body, "type %s %s\n\n", goName, t.Expr)
	return nil
}

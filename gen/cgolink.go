package gen

import (
	"fmt"
	"go/format"
	"strings"

	"github.com/benn-herrera/litebind/model"
)

// LinkFile is the name of the generated cgo link directives.
const LinkFile = "tflite_link.go"

type cgoLinkGenerator struct{}

func init() {
	Register("cgolink", func() Generator { return &cgoLinkGenerator{} })
}

func (g *cgoLinkGenerator) Name() string { return "cgolink" }

func (g *cgoLinkGenerator) Generate(ctx *Context) ([]*OutputFile, error) {
	src, err := GenerateLink(ctx)
	if err != nil {
		return nil, err
	}
	return []*OutputFile{{Path: LinkFile, Content: src}}, nil
}

// LDFlags renders the link order. Static archives are named by path so the
// linker cannot pick a shared library of the same name instead.
// e.g., {tflite_shim static, dl} → "${SRCDIR}/libtflite_shim.a -ldl"
func LDFlags(libs []model.LinkLib) string {
	flags := make([]string, len(libs))
	for i, l := range libs {
		if l.Static {
			flags[i] = "${SRCDIR}/" + l.ArchiveName()
		} else {
			flags[i] = "-l" + l.Name
		}
	}
	return strings.Join(flags, " ")
}

// GenerateLink renders the cgo preamble that links the shim and the static
// library into the package next to it.
func GenerateLink(ctx *Context) ([]byte, error) {
	if ctx.Manifest == nil {
		return nil, fmt.Errorf("no bindings manifest")
	}
	libs := ctx.Links
	if len(libs) == 0 {
		libs = model.DefaultLinkLibs
	}

	var b strings.Builder
	generatedHeader(&b, ctx)
	fmt.Fprintf(&b, "package %s\n\n", ctx.Manifest.Package)
	b.WriteString("/*\n")
	b.WriteString("#cgo CFLAGS: -I${SRCDIR}\n")
	fmt.Fprintf(&b, "#cgo LDFLAGS: %s\n", LDFlags(libs))
	if ctx.ShimHeader != "" {
		fmt.Fprintf(&b, "#include %q\n", ctx.ShimHeader)
	}
	b.WriteString("*/\n")
	b.WriteString("import \"C\"\n")

	out, err := format.Source([]byte(b.String()))
	if err != nil {
		return nil, fmt.Errorf("formatting link file: %w", err)
	}
	return out, nil
}

package gen

import (
	"github.com/benn-herrera/litebind/model"
	"github.com/benn-herrera/litebind/resolver"
)

// Context holds everything a generator needs to produce output.
type Context struct {
	Manifest      *model.Manifest
	ResolvedTypes resolver.ResolvedTypes
	Release       *model.Release
	Links         []model.LinkLib // cgo link order
	ShimHeader    string          // header name included by the link file
}

// NewContext creates a new generation context.
func NewContext(m *model.Manifest, resolvedTypes resolver.ResolvedTypes, release *model.Release) *Context {
	return &Context{
		Manifest:      m,
		ResolvedTypes: resolvedTypes,
		Release:       release,
	}
}

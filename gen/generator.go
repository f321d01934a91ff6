package gen

import (
	"fmt"
	"sync"
)

// OutputFile represents a single generated file.
type OutputFile struct {
	Path    string // Relative path within output directory
	Content []byte
}

// Generator is the interface all code generators implement.
// Each generator produces output files for one artifact of the build
// (e.g., Go type declarations, cgo link directives).
type Generator interface {
	// Name returns the generator name (e.g., "gotypes", "cgolink").
	Name() string

	// Generate produces output files for the given context.
	Generate(ctx *Context) ([]*OutputFile, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Generator{}
)

// Register adds a generator factory to the registry.
// Typically called from init() in each generator's file.
func Register(name string, factory func() Generator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("generator %q already registered", name))
	}
	registry[name] = factory
}

// Get returns a new instance of the named generator.
func Get(name string) (Generator, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Run executes the named generator.
func Run(name string, ctx *Context) ([]*OutputFile, error) {
	g, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown generator %q", name)
	}
	files, err := g.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("generator %s failed: %w", name, err)
	}
	return files, nil
}

package loader

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/benn-herrera/litebind/model"
	"gopkg.in/yaml.v3"
)

//go:embed default_project.yaml
var defaultProjectYAML []byte

// DefaultProjectYAML returns the built-in project definition pinned to
// TensorFlow Lite 1.12.2.
func DefaultProjectYAML() []byte {
	return defaultProjectYAML
}

// LoadProject reads and parses a litebind.yaml project file.
// It validates the YAML against the JSON Schema before unmarshalling.
// An empty path loads the built-in project.
func LoadProject(path string) (*model.Project, error) {
	if path == "" {
		return LoadProjectBytes(defaultProjectYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}
	return LoadProjectBytes(data)
}

// LoadProjectBytes schema-validates and parses a project definition.
func LoadProjectBytes(data []byte) (*model.Project, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	var p model.Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing project: %w", err)
	}
	return &p, nil
}

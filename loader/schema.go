package loader

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// schemaJSON is the embedded JSON Schema for litebind.yaml project files.
var schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://litebind.dev/schemas/project/v1",
  "title": "litebind project",
  "description": "Pinned native release, build settings and binding manifest.",
  "type": "object",
  "required": ["release", "bindings"],
  "additionalProperties": false,
  "properties": {
    "release": { "$ref": "#/$defs/release" },
    "build": { "$ref": "#/$defs/build" },
    "bindings": { "$ref": "#/$defs/bindings" }
  },
  "$defs": {
    "release": {
      "type": "object",
      "required": ["version", "sha256", "url"],
      "additionalProperties": false,
      "properties": {
        "version": { "type": "string", "pattern": "^\\d+\\.\\d+\\.\\d+([.-][0-9A-Za-z]+)*$" },
        "sha256": { "type": "string", "pattern": "^[0-9a-f]{64}$" },
        "url": { "type": "string", "pattern": "^https?://.*\\{version\\}" }
      }
    },
    "build": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "output_dir": { "type": "string" },
        "os": { "type": "string", "pattern": "^[a-z][a-z0-9_]*$" },
        "arch": { "type": "string", "pattern": "^[a-z0-9_]+$" },
        "parallelism": {
          "anyOf": [
            { "type": "integer", "minimum": 1 },
            { "type": "string", "pattern": "^([1-9][0-9]*|auto)$" }
          ]
        },
        "debug": { "type": "boolean" },
        "clang": { "type": "string" },
        "cxx": { "type": "string" },
        "ar": { "type": "string" }
      }
    },
    "bindings": {
      "type": "object",
      "required": ["package", "types"],
      "additionalProperties": false,
      "properties": {
        "package": { "type": "string", "pattern": "^[a-z][a-z0-9_]*$" },
        "header": { "type": "string" },
        "std": { "type": "string", "enum": ["c++11", "c++14", "c++17"] },
        "defines": {
          "type": "array",
          "items": { "type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*(=.*)?$" }
        },
        "clang_args": {
          "type": "array",
          "items": { "type": "string" }
        },
        "types": {
          "type": "array",
          "items": { "$ref": "#/$defs/type_entry" },
          "minItems": 1
        },
        "blocklist": {
          "type": "array",
          "items": { "$ref": "#/$defs/qualified_name" },
          "uniqueItems": true
        }
      }
    },
    "type_entry": {
      "type": "object",
      "required": ["name"],
      "additionalProperties": false,
      "properties": {
        "name": { "$ref": "#/$defs/qualified_name" },
        "opaque": { "type": "boolean" }
      }
    },
    "qualified_name": {
      "type": "string",
      "pattern": "^[A-Za-z_][A-Za-z0-9_]*(::[A-Za-z_][A-Za-z0-9_]*)*$"
    }
  }
}`

var compiledSchema *jsonschema.Schema

func init() {
	var schemaDoc interface{}
	if err := json.Unmarshal([]byte(schemaJSON), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to decode schema JSON: %v", err))
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add schema resource: %v", err))
	}
	var err error
	compiledSchema, err = c.Compile("schema.json")
	if err != nil {
		panic(fmt.Sprintf("failed to compile schema: %v", err))
	}
}

// SchemaJSON returns the project JSON Schema text.
func SchemaJSON() string {
	return schemaJSON
}

// ValidateSchema validates raw YAML bytes against the project JSON Schema.
func ValidateSchema(yamlData []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	if err := compiledSchema.Validate(convertYAMLToJSON(raw)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// convertYAMLToJSON converts YAML-parsed values to the types the schema
// validator expects. yaml.v3 yields int for integers, JSON decoding float64.
func convertYAMLToJSON(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for k, val := range v {
			result[k] = convertYAMLToJSON(val)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = convertYAMLToJSON(val)
		}
		return result
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return v
	}
}

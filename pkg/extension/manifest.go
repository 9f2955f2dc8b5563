package extension

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// descriptorSchema is the JSON Schema for descriptor manifest documents fed
// to the pipeline by file-based providers. It enforces document structure
// only; id/name patterns and version semantics are the validator's job, so
// a manifest that decodes here can still be rejected downstream.
const descriptorSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "version", "capabilities"],
  "properties": {
    "id": {"type": "string"},
    "display_name": {"type": "string"},
    "version": {"type": "string"},
    "min_host_version": {"type": "string"},
    "capabilities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "kind"],
        "properties": {
          "name": {"type": "string"},
          "kind": {"type": "string"},
          "exclusive": {"type": "boolean"},
          "metadata": {"type": "object"}
        },
        "additionalProperties": false
      }
    },
    "requires": {"type": "array", "items": {"type": "string"}},
    "optional": {"type": "array", "items": {"type": "string"}},
    "requires_capabilities": {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": false
}`

var (
	descriptorSchemaOnce     sync.Once
	descriptorSchemaCompiled *jsonschema.Schema
)

func compiledDescriptorSchema() *jsonschema.Schema {
	descriptorSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const schemaURL = "https://forge.schemas.local/extension/descriptor.schema.json"
		if err := c.AddResource(schemaURL, strings.NewReader(descriptorSchema)); err != nil {
			panic(fmt.Sprintf("descriptor schema load failed: %v", err))
		}
		descriptorSchemaCompiled = c.MustCompile(schemaURL)
	})
	return descriptorSchemaCompiled
}

// DecodeManifest parses a descriptor manifest document, validating it
// against the descriptor schema first so malformed documents fail with a
// schema error rather than a half-populated struct.
func DecodeManifest(data []byte) (Descriptor, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("descriptor manifest is not valid JSON: %w", err)
	}
	if err := compiledDescriptorSchema().Validate(raw); err != nil {
		return Descriptor{}, fmt.Errorf("descriptor manifest schema validation failed: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("descriptor manifest decode failed: %w", err)
	}
	return d, nil
}

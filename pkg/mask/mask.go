// Package mask loads per-extension capability masks. Masks are authored by
// the deployment operator, not the extension author, and can only disable
// capabilities an extension declared. A missing mask is an empty mask; a
// malformed mask degrades to an empty mask with a warning and never fails
// the boot.
package mask

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/riftgate/forge/pkg/extension"
)

// Mask is one extension's capability mask document.
type Mask struct {
	Disable []string       `json:"disable"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Empty reports whether the mask disables nothing.
func (m Mask) Empty() bool { return len(m.Disable) == 0 }

// Source supplies masks by extension id. Implementations must degrade
// malformed input to an empty mask plus WARN messages; only the resolver
// turns mask content into errors.
type Source interface {
	Load(extensionID string) (Mask, []extension.Message)
}

const maskSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["disable"],
  "properties": {
    "disable": {"type": "array", "items": {"type": "string"}},
    "meta": {"type": "object"}
  },
  "additionalProperties": false
}`

var (
	maskSchemaOnce     sync.Once
	maskSchemaCompiled *jsonschema.Schema
)

func compiledMaskSchema() *jsonschema.Schema {
	maskSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const schemaURL = "https://forge.schemas.local/mask/mask.schema.json"
		if err := c.AddResource(schemaURL, strings.NewReader(maskSchema)); err != nil {
			panic(fmt.Sprintf("mask schema load failed: %v", err))
		}
		maskSchemaCompiled = c.MustCompile(schemaURL)
	})
	return maskSchemaCompiled
}

// DirSource reads masks from <dir>/<extension id>.json.
type DirSource struct {
	dir string
	log *slog.Logger
}

// NewDirSource builds a file-backed mask source. An empty dir means no masks
// anywhere.
func NewDirSource(dir string, logger *slog.Logger) *DirSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirSource{dir: dir, log: logger.With("component", "mask")}
}

// Load reads and validates the mask file for extensionID.
func (s *DirSource) Load(extensionID string) (Mask, []extension.Message) {
	if s.dir == "" {
		return Mask{}, nil
	}
	path := filepath.Join(s.dir, extensionID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Mask{}, nil
		}
		s.log.Warn("mask file unreadable", "extension", extensionID, "path", path, "err", err)
		return Mask{}, []extension.Message{extension.Warnf(extension.CodeMalformedMask, extensionID,
			"mask file %s is unreadable: %v; treating as empty mask", path, err)}
	}
	return Parse(extensionID, data)
}

// Parse decodes a mask document, degrading schema or JSON failures to an
// empty mask plus a warning.
func Parse(extensionID string, data []byte) (Mask, []extension.Message) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Mask{}, []extension.Message{extension.Warnf(extension.CodeMalformedMask, extensionID,
			"mask document is not valid JSON: %v; treating as empty mask", err)}
	}
	if err := compiledMaskSchema().Validate(raw); err != nil {
		return Mask{}, []extension.Message{extension.Warnf(extension.CodeMalformedMask, extensionID,
			"mask document failed schema validation: %v; treating as empty mask", err)}
	}
	var m Mask
	if err := json.Unmarshal(data, &m); err != nil {
		return Mask{}, []extension.Message{extension.Warnf(extension.CodeMalformedMask, extensionID,
			"mask document decode failed: %v; treating as empty mask", err)}
	}
	return m, nil
}

// StaticSource serves masks from a fixed map. Hosts that carry masks in
// their own config use this instead of mask files.
type StaticSource map[string]Mask

// Load returns the mask for extensionID, or an empty mask.
func (s StaticSource) Load(extensionID string) (Mask, []extension.Message) {
	return s[extensionID], nil
}

package boot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/riftgate/forge/pkg/extension"
	"github.com/riftgate/forge/pkg/registry"
)

// Candidate is one discovered extension: the descriptor triple plus the
// registrar that will publish its capabilities if it survives validation
// and resolution.
type Candidate struct {
	Provider   string
	Source     string
	Descriptor extension.Descriptor
	// Registrar may be nil for extensions whose functionality is bound
	// entirely by the script runtime; nil registers nothing.
	Registrar Registrar
}

// DescriptorProvider supplies candidates during the discovery phase. The
// pipeline assumes the call has no side effects and sorts the output
// itself, so enumeration order never matters.
type DescriptorProvider interface {
	Discover(ctx context.Context) ([]Candidate, error)
}

// StaticProvider serves a fixed candidate list.
type StaticProvider []Candidate

// Discover returns the candidates as given.
func (p StaticProvider) Discover(ctx context.Context) ([]Candidate, error) {
	return []Candidate(p), nil
}

// ManifestDirProvider discovers extensions from descriptor manifest files
// (*.json) in a directory. Manifest-backed extensions carry no host code;
// their capabilities are published as script-bound slots.
type ManifestDirProvider struct {
	Dir string
}

// Discover reads every manifest in the directory. A manifest that fails to
// decode is surfaced as a candidate with a synthetic descriptor so the
// validator rejects it visibly instead of it vanishing from the boot
// report.
func (p ManifestDirProvider) Discover(ctx context.Context) ([]Candidate, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("manifest discovery in %q: %w", p.Dir, err)
	}

	var out []Candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(p.Dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("manifest discovery: read %q: %w", path, err)
		}
		desc, err := extension.DecodeManifest(data)
		if err != nil {
			out = append(out, Candidate{
				Provider:   "manifest",
				Source:     path,
				Descriptor: extension.Descriptor{DisplayName: entry.Name()},
			})
			continue
		}
		out = append(out, Candidate{
			Provider:   "manifest",
			Source:     path,
			Descriptor: desc,
			Registrar:  scriptBoundRegistrar{},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// scriptBoundRegistrar publishes every effective capability of a
// manifest-backed extension as a slot for the script runtime to bind. The
// placeholder handler refuses host-side invocation; the runtime replaces
// the binding during the script phases.
type scriptBoundRegistrar struct{}

func (scriptBoundRegistrar) RegisterCapabilities(rc *RegistrationContext) error {
	ext := rc.Extension()
	for _, c := range ext.Capabilities {
		c := c
		h := registry.Handler(func(args map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("capability %q of extension %q is script-bound", c.Name, ext.Descriptor.ID)
		})
		var err error
		switch c.Kind {
		case extension.KindHook:
			err = rc.RegisterHook(c.Name, h, c.Metadata)
		case extension.KindService:
			err = rc.RegisterService(c.Name, h, c.Metadata)
		default:
			err = rc.RegisterAPI(c.Name, h, c.Metadata)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftgate/forge/pkg/extension"
	"github.com/riftgate/forge/pkg/mask"
)

func validated(id string, mut ...func(*extension.Descriptor)) extension.Validated {
	d := extension.Descriptor{
		ID:             id,
		DisplayName:    id,
		Version:        "1.0.0",
		MinHostVersion: "1.0.0",
		Capabilities: []extension.CapabilityDecl{
			{Name: id + ".main", Kind: extension.KindService},
		},
	}
	for _, m := range mut {
		m(&d)
	}
	return extension.Validated{
		Descriptor:   d,
		Source:       "test:" + id,
		Capabilities: d.Capabilities,
	}
}

func rejectedIDs(res Result) []string {
	out := make([]string, 0, len(res.Rejected))
	for _, r := range res.Rejected {
		out = append(out, r.Descriptor.ID)
	}
	return out
}

func enabledIDs(res Result) []string {
	out := make([]string, 0, len(res.Enabled))
	for _, v := range res.Enabled {
		out = append(out, v.Descriptor.ID)
	}
	return out
}

func rejectionCodes(res Result, id string) []string {
	for _, r := range res.Rejected {
		if r.Descriptor.ID == id {
			out := make([]string, 0, len(r.Errors))
			for _, e := range r.Errors {
				out = append(out, e.Code)
			}
			return out
		}
	}
	return nil
}

func TestResolveMasks(t *testing.T) {
	t.Run("disabled capability leaves the effective set", func(t *testing.T) {
		masks := mask.StaticSource{
			"terrain": {Disable: []string{"terrain.extra"}},
		}
		r := New(masks, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("terrain", func(d *extension.Descriptor) {
				d.Capabilities = append(d.Capabilities, extension.CapabilityDecl{
					Name: "terrain.extra", Kind: extension.KindHook,
				})
			}),
		})
		require.NoError(t, err)
		require.Equal(t, []string{"terrain"}, enabledIDs(res))
		assert.True(t, res.Enabled[0].DeclaresCapability("terrain.main"))
		assert.False(t, res.Enabled[0].DeclaresCapability("terrain.extra"))
		// The declared list on the descriptor is untouched.
		assert.Len(t, res.Enabled[0].Descriptor.Capabilities, 2)
	})

	t.Run("mask naming an undeclared capability rejects", func(t *testing.T) {
		masks := mask.StaticSource{
			"terrain": {Disable: []string{"terrain.nope"}},
		}
		r := New(masks, Options{}, nil)
		res, err := r.Run([]extension.Validated{validated("terrain")})
		require.NoError(t, err)
		assert.Empty(t, res.Enabled)
		assert.Contains(t, rejectionCodes(res, "terrain"), extension.CodeInvalidMaskEntry)
	})

	t.Run("masked-out provider orphans its dependents", func(t *testing.T) {
		masks := mask.StaticSource{
			"terrain": {Disable: []string{"terrain.main"}},
		}
		r := New(masks, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("terrain"),
			validated("mapper", func(d *extension.Descriptor) {
				d.RequiresCapabilities = []string{"terrain.main"}
			}),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"terrain"}, enabledIDs(res))
		assert.Contains(t, rejectionCodes(res, "mapper"), extension.CodeMissingRequiredCapability)
	})
}

func TestResolveExclusivity(t *testing.T) {
	t.Run("two providers of an exclusive capability are both rejected", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("alpha", func(d *extension.Descriptor) {
				d.Capabilities = []extension.CapabilityDecl{
					{Name: "worldgen.resolve", Kind: extension.KindService},
				}
			}),
			validated("beta", func(d *extension.Descriptor) {
				d.Capabilities = []extension.CapabilityDecl{
					{Name: "worldgen.resolve", Kind: extension.KindService},
				}
			}),
		})
		require.NoError(t, err)
		assert.Empty(t, res.Enabled)
		assert.Equal(t, []string{"alpha", "beta"}, rejectedIDs(res))
		for _, id := range []string{"alpha", "beta"} {
			assert.Contains(t, rejectionCodes(res, id), extension.CodeCapabilityConflict)
		}
	})

	t.Run("hooks are shared unless flagged exclusive", func(t *testing.T) {
		hook := func(d *extension.Descriptor) {
			d.Capabilities = []extension.CapabilityDecl{
				{Name: "world.on_tick", Kind: extension.KindHook},
			}
		}
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("alpha", hook),
			validated("beta", hook),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta"}, enabledIDs(res))
	})

	t.Run("explicit exclusive flag on a hook triggers the conflict", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("alpha", func(d *extension.Descriptor) {
				d.Capabilities = []extension.CapabilityDecl{
					{Name: "world.on_tick", Kind: extension.KindHook, Exclusive: true},
				}
			}),
			validated("beta", func(d *extension.Descriptor) {
				d.Capabilities = []extension.CapabilityDecl{
					{Name: "world.on_tick", Kind: extension.KindHook},
				}
			}),
		})
		require.NoError(t, err)
		assert.Empty(t, res.Enabled)
		assert.Equal(t, []string{"alpha", "beta"}, rejectedIDs(res))
	})
}

func TestResolveReferences(t *testing.T) {
	t.Run("missing required extension", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("mapper", func(d *extension.Descriptor) {
				d.Requires = []string{"terrain"}
			}),
		})
		require.NoError(t, err)
		assert.Empty(t, res.Enabled)
		assert.Contains(t, rejectionCodes(res, "mapper"), extension.CodeMissingRequiredDependency)
	})

	t.Run("missing required capability", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("mapper", func(d *extension.Descriptor) {
				d.RequiresCapabilities = []string{"terrain.generate"}
			}),
		})
		require.NoError(t, err)
		assert.Empty(t, res.Enabled)
		assert.Contains(t, rejectionCodes(res, "mapper"), extension.CodeMissingRequiredCapability)
	})

	t.Run("capability requirement resolves to provider ids", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("terrain"),
			validated("mapper", func(d *extension.Descriptor) {
				d.RequiresCapabilities = []string{"terrain.main"}
			}),
		})
		require.NoError(t, err)
		require.Equal(t, []string{"mapper", "terrain"}, enabledIDs(res))
		assert.Equal(t, []string{"terrain"}, res.Enabled[0].Dependencies)
		assert.Equal(t, []string{"terrain"}, res.Graph.Dependencies("mapper"))
	})

	t.Run("rejection cascades through the chain", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("mid", func(d *extension.Descriptor) {
				d.Requires = []string{"base"}
			}),
			validated("top", func(d *extension.Descriptor) {
				d.Requires = []string{"mid"}
			}),
		})
		require.NoError(t, err)
		assert.Empty(t, res.Enabled)
		assert.Contains(t, rejectionCodes(res, "mid"), extension.CodeMissingRequiredDependency)
		assert.Contains(t, rejectionCodes(res, "top"), extension.CodeMissingRequiredDependency)
	})

	t.Run("optional missing is never an error", func(t *testing.T) {
		optional := func(d *extension.Descriptor) {
			d.Optional = []string{"extras"}
		}

		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{validated("mapper", optional)})
		require.NoError(t, err)
		assert.Equal(t, []string{"mapper"}, enabledIDs(res))
		assert.Empty(t, res.Warnings)

		r = New(nil, Options{WarnOnOptionalMissing: true}, nil)
		res, err = r.Run([]extension.Validated{validated("mapper", optional)})
		require.NoError(t, err)
		assert.Equal(t, []string{"mapper"}, enabledIDs(res))
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, extension.CodeOptionalMissing, res.Warnings[0].Code)
		assert.Equal(t, extension.SeverityWarn, res.Warnings[0].Severity)
	})
}

func TestResolveCycles(t *testing.T) {
	t.Run("two-node cycle rejects both and names the members", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("a", func(d *extension.Descriptor) { d.Requires = []string{"b"} }),
			validated("b", func(d *extension.Descriptor) { d.Requires = []string{"a"} }),
		})
		require.NoError(t, err)
		assert.Empty(t, res.Enabled)
		require.Equal(t, []string{"a", "b"}, rejectedIDs(res))
		for _, rej := range res.Rejected {
			require.Len(t, rej.Errors, 1)
			assert.Equal(t, extension.CodeDependencyCycle, rej.Errors[0].Code)
			assert.Contains(t, rej.Errors[0].Text, "[a, b]")
		}
	})

	t.Run("self requirement is a one-node cycle", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("loner", func(d *extension.Descriptor) { d.Requires = []string{"loner"} }),
		})
		require.NoError(t, err)
		assert.Empty(t, res.Enabled)
		assert.Contains(t, rejectionCodes(res, "loner"), extension.CodeDependencyCycle)
	})

	t.Run("dependents of a cycle are rejected in the follow-up wave", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("a", func(d *extension.Descriptor) { d.Requires = []string{"b"} }),
			validated("b", func(d *extension.Descriptor) { d.Requires = []string{"a"} }),
			validated("outsider", func(d *extension.Descriptor) { d.Requires = []string{"a"} }),
			validated("clean"),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"clean"}, enabledIDs(res))
		assert.Equal(t, []string{"a", "b", "outsider"}, rejectedIDs(res))
		assert.Contains(t, rejectionCodes(res, "outsider"), extension.CodeMissingRequiredDependency)
		// The follow-up wave prunes the rejected nodes out of the graph.
		assert.Equal(t, []string{"clean"}, res.Graph.Nodes())
	})
}

func TestResolveResult(t *testing.T) {
	t.Run("enabled set and graph are sorted and aligned", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run([]extension.Validated{
			validated("zeta"),
			validated("alpha"),
			validated("mid", func(d *extension.Descriptor) { d.Requires = []string{"alpha"} }),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, enabledIDs(res))
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, res.Graph.Nodes())
		order, ok := res.Graph.TopoOrder()
		require.True(t, ok)
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, order)
	})

	t.Run("empty input yields empty result", func(t *testing.T) {
		r := New(nil, Options{}, nil)
		res, err := r.Run(nil)
		require.NoError(t, err)
		assert.Empty(t, res.Enabled)
		assert.Empty(t, res.Rejected)
		require.NotNil(t, res.Graph)
		assert.Empty(t, res.Graph.Nodes())
	})
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, key := range []string{
			"FORGE_HOST_VERSION", "FORGE_MASK_DIR", "FORGE_FAIL_FAST",
			"FORGE_DISABLE_INVALID", "FORGE_WARN_OPTIONAL_MISSING",
		} {
			t.Setenv(key, "")
		}
		cfg := Load()
		assert.Equal(t, "1.0.0", cfg.HostVersion)
		assert.Empty(t, cfg.MaskDir)
		assert.False(t, cfg.Policy.FailFast)
		assert.True(t, cfg.Policy.DisableInvalid)
		assert.True(t, cfg.Policy.WarnOnOptionalMissing)
		assert.Equal(t, int64(64*1024*1024), cfg.Sandbox.MemoryLimitBytes)
		assert.Equal(t, 5*time.Second, cfg.Sandbox.RunTimeout)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("FORGE_HOST_VERSION", "2.3.1")
		t.Setenv("FORGE_MASK_DIR", "/etc/forge/masks")
		t.Setenv("FORGE_FAIL_FAST", "true")
		t.Setenv("FORGE_DISABLE_INVALID", "false")
		t.Setenv("FORGE_WARN_OPTIONAL_MISSING", "false")

		cfg := Load()
		assert.Equal(t, "2.3.1", cfg.HostVersion)
		assert.Equal(t, "/etc/forge/masks", cfg.MaskDir)
		assert.True(t, cfg.Policy.FailFast)
		assert.False(t, cfg.Policy.DisableInvalid)
		assert.False(t, cfg.Policy.WarnOnOptionalMissing)
	})
}

func TestLoadProfile(t *testing.T) {
	base := &Config{
		HostVersion: "1.0.0",
		MaskDir:     "/etc/forge/masks",
		Policy: Policy{
			DisableInvalid:        true,
			WarnOnOptionalMissing: true,
		},
		Sandbox: SandboxLimits{
			MemoryLimitBytes: 64 * 1024 * 1024,
			RunTimeout:       5 * time.Second,
		},
	}

	writeProfile := func(t *testing.T, doc string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "profile.yaml")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
		return path
	}

	t.Run("profile overrides only what it names", func(t *testing.T) {
		path := writeProfile(t, "host_version: \"2.0.0\"\nsandbox:\n  run_timeout: 10s\n")
		merged, err := LoadProfile(path, base)
		require.NoError(t, err)
		assert.Equal(t, "2.0.0", merged.HostVersion)
		assert.Equal(t, "/etc/forge/masks", merged.MaskDir)
		assert.Equal(t, base.Policy, merged.Policy)
		assert.Equal(t, 10*time.Second, merged.Sandbox.RunTimeout)
		assert.Equal(t, base.Sandbox.MemoryLimitBytes, merged.Sandbox.MemoryLimitBytes)
	})

	t.Run("a policy block owns all three flags", func(t *testing.T) {
		path := writeProfile(t, "policy:\n  fail_fast: true\n")
		merged, err := LoadProfile(path, base)
		require.NoError(t, err)
		assert.True(t, merged.Policy.FailFast)
		// Flags the block omits fall to their zero value, not the base.
		assert.False(t, merged.Policy.DisableInvalid)
		assert.False(t, merged.Policy.WarnOnOptionalMissing)
	})

	t.Run("profile without a policy block keeps the base policy", func(t *testing.T) {
		path := writeProfile(t, "mask_dir: /srv/masks\n")
		merged, err := LoadProfile(path, base)
		require.NoError(t, err)
		assert.Equal(t, base.Policy, merged.Policy)
		assert.Equal(t, "/srv/masks", merged.MaskDir)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"), base)
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeProfile(t, "host_version: [\n")
		_, err := LoadProfile(path, base)
		assert.Error(t, err)
	})

	t.Run("base is not mutated", func(t *testing.T) {
		path := writeProfile(t, "host_version: \"9.9.9\"\n")
		_, err := LoadProfile(path, base)
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", base.HostVersion)
	})
}

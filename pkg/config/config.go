// Package config loads host configuration for the boot pipeline from
// environment variables, optionally overridden by a YAML boot profile.
package config

import (
	"os"
	"time"
)

// Policy holds the validation policy flags.
type Policy struct {
	// FailFast aborts the entire boot on the first ERROR-severity message.
	FailFast bool `yaml:"fail_fast"`
	// DisableInvalid skips invalid extensions and continues the boot.
	DisableInvalid bool `yaml:"disable_invalid"`
	// WarnOnOptionalMissing emits warnings for unresolved optional
	// references.
	WarnOnOptionalMissing bool `yaml:"warn_on_optional_missing"`
}

// SandboxLimits bound the reference script runtime.
type SandboxLimits struct {
	MemoryLimitBytes int64         `yaml:"memory_limit_bytes"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
}

// Config holds everything the host passes into a boot.
type Config struct {
	// HostVersion is the running platform version extensions check their
	// minimum against.
	HostVersion string `yaml:"host_version"`
	// MaskDir is the directory of operator capability mask files; empty
	// means no masks.
	MaskDir string        `yaml:"mask_dir"`
	Policy  Policy        `yaml:"policy"`
	Sandbox SandboxLimits `yaml:"sandbox"`
}

// Load reads configuration from environment variables, applying defaults.
func Load() *Config {
	hostVersion := os.Getenv("FORGE_HOST_VERSION")
	if hostVersion == "" {
		hostVersion = "1.0.0"
	}

	maskDir := os.Getenv("FORGE_MASK_DIR")

	policy := Policy{
		FailFast:              os.Getenv("FORGE_FAIL_FAST") == "true",
		DisableInvalid:        os.Getenv("FORGE_DISABLE_INVALID") != "false",
		WarnOnOptionalMissing: os.Getenv("FORGE_WARN_OPTIONAL_MISSING") != "false",
	}

	limits := SandboxLimits{
		MemoryLimitBytes: 64 * 1024 * 1024,
		RunTimeout:       5 * time.Second,
	}

	return &Config{
		HostVersion: hostVersion,
		MaskDir:     maskDir,
		Policy:      policy,
		Sandbox:     limits,
	}
}

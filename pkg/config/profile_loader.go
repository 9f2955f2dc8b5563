package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadProfile reads a YAML boot profile and applies it over base, returning
// the merged configuration. Zero values in the profile leave the base value
// in place, so a profile only has to name what it changes.
func LoadProfile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load boot profile %q: %w", path, err)
	}

	var profile Config
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse boot profile %q: %w", path, err)
	}

	merged := *base
	if profile.HostVersion != "" {
		merged.HostVersion = profile.HostVersion
	}
	if profile.MaskDir != "" {
		merged.MaskDir = profile.MaskDir
	}
	// Policy flags are copied wholesale: a profile that carries a policy
	// block owns all three flags.
	if hasPolicyBlock(data) {
		merged.Policy = profile.Policy
	}
	if profile.Sandbox.MemoryLimitBytes > 0 {
		merged.Sandbox.MemoryLimitBytes = profile.Sandbox.MemoryLimitBytes
	}
	if profile.Sandbox.RunTimeout > 0 {
		merged.Sandbox.RunTimeout = profile.Sandbox.RunTimeout
	}
	return &merged, nil
}

// UnmarshalYAML accepts run_timeout as a duration string ("10s").
func (s *SandboxLimits) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MemoryLimitBytes int64  `yaml:"memory_limit_bytes"`
		RunTimeout       string `yaml:"run_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.MemoryLimitBytes = raw.MemoryLimitBytes
	if raw.RunTimeout == "" {
		s.RunTimeout = 0
		return nil
	}
	d, err := time.ParseDuration(raw.RunTimeout)
	if err != nil {
		return fmt.Errorf("sandbox run_timeout: %w", err)
	}
	s.RunTimeout = d
	return nil
}

func hasPolicyBlock(data []byte) bool {
	var probe struct {
		Policy *Policy `yaml:"policy"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Policy != nil
}

package plugin

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ManagerConfig describes how the plugin manager should behave.
type ManagerConfig struct {
	PluginDir string                  `yaml:"pluginDir"`
	Defaults  CapabilityPolicy        `yaml:"defaults"`
	Plugins   map[string]PluginConfig `yaml:"plugins"`
}

// PluginConfig is the configuration block for a single plugin instance.
type PluginConfig struct {
	Enabled bool              `yaml:"enabled"`
	Path    string            `yaml:"path"`
	Config  map[string]any    `yaml:"config"`
	Policy  *CapabilityPolicy `yaml:"policy"`
}

// CapabilityPolicy governs which capabilities a plugin may request.
type CapabilityPolicy struct {
	Allowed []Capability `yaml:"allowed"`
	Denied  []Capability `yaml:"denied"`
}

// Validate checks the plugin's declared capabilities against the policy.
func (p CapabilityPolicy) Validate(info Info) error {
	for _, capability := range info.Capabilities {
		if slices.Contains(p.Denied, capability) {
			return fmt.Errorf("capability %s is explicitly denied", capability)
		}
	}
	if len(p.Allowed) == 0 {
		if len(info.Capabilities) > 0 && len(p.Denied) == 0 {
			return errors.New("plugins declaring capabilities require a capability policy")
		}
		return nil
	}
	for _, capability := range info.Capabilities {
		if !slices.Contains(p.Allowed, capability) {
			return fmt.Errorf("capability %s not permitted", capability)
		}
	}
	return nil
}

// merge returns the plugin policy, falling back to defaults for empty fields.
func (p CapabilityPolicy) merge(defaults CapabilityPolicy) CapabilityPolicy {
	if len(p.Allowed) == 0 {
		p.Allowed = defaults.Allowed
	}
	if len(p.Denied) == 0 {
		p.Denied = defaults.Denied
	}
	return p
}

// LoadManagerConfig reads a YAML file into a ManagerConfig.
func LoadManagerConfig(path string) (ManagerConfig, error) {
	var cfg ManagerConfig
	if path == "" {
		return cfg, errors.New("config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read plugin config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal plugin config: %w", err)
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	return cfg, nil
}

// Validate ensures the manager configuration is internally consistent.
func (c ManagerConfig) Validate() error {
	for id, plugin := range c.Plugins {
		if id == "" {
			return errors.New("plugin id cannot be empty")
		}
		if !plugin.Enabled {
			continue
		}
		if plugin.Path == "" {
			return fmt.Errorf("plugin %s path cannot be empty when enabled", id)
		}
	}
	return nil
}

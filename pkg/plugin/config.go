package plugin

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManagerConfig describes how the plugin manager should behave.
type ManagerConfig struct {
	PluginDir string                  `yaml:"pluginDir"`
	Defaults  IsolationPolicy         `yaml:"defaults"`
	Plugins   map[string]PluginConfig `yaml:"plugins"`
}

// PluginConfig is the configuration block for a single plugin instance.
// Entries without a path configure a plugin compiled into the host.
type PluginConfig struct {
	Enabled bool             `yaml:"enabled"`
	Path    string           `yaml:"path"`
	Config  map[string]any   `yaml:"config"`
	Policy  *IsolationPolicy `yaml:"policy"`
}

// IsolationPolicy governs the security restrictions enforced for a plugin.
type IsolationPolicy struct {
	AllowedCapabilities []Capability `yaml:"allowedCapabilities"`
	DeniedCapabilities  []Capability `yaml:"deniedCapabilities"`
	// AllowedNetworks restricts the chain networks a plugin may submit to. Empty allows all.
	AllowedNetworks []string `yaml:"allowedNetworks"`
}

// Merge returns a new policy using values from other when not present.
func (p IsolationPolicy) Merge(other IsolationPolicy) IsolationPolicy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = other.AllowedCapabilities
	}
	if len(p.DeniedCapabilities) == 0 {
		p.DeniedCapabilities = other.DeniedCapabilities
	}
	if len(p.AllowedNetworks) == 0 {
		p.AllowedNetworks = other.AllowedNetworks
	}
	return p
}

func (p IsolationPolicy) empty() bool {
	return len(p.AllowedCapabilities) == 0 && len(p.DeniedCapabilities) == 0 && len(p.AllowedNetworks) == 0
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
		if plugin.Policy == nil {
			continue
		}
		for _, cap := range append(append([]Capability(nil), plugin.Policy.AllowedCapabilities...), plugin.Policy.DeniedCapabilities...) {
			switch cap {
			case CapabilityNetwork, CapabilitySigning, CapabilityExecution:
			default:
				return fmt.Errorf("plugin %s: unknown capability %q", id, cap)
			}
		}
	}
	return nil
}

// Builtin returns the configuration block for a compiled-in plugin.
// A missing entry counts as enabled with an empty configuration.
func (c ManagerConfig) Builtin(id string) (PluginConfig, bool) {
	pc, ok := c.Plugins[id]
	if !ok {
		return PluginConfig{Enabled: true, Config: map[string]any{}}, true
	}
	if pc.Path != "" || !pc.Enabled {
		return pc, false
	}
	if pc.Config == nil {
		pc.Config = map[string]any{}
	}
	return pc, true
}

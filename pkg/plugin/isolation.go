package plugin

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// IsolationStrategy enforces security restrictions for plugins at runtime.
type IsolationStrategy interface {
	Validate(info Info, policy IsolationPolicy) error
	Prepare(info Info) error
	Cleanup(info Info) error
}

// CapabilityStrategy performs only capability validation.
type CapabilityStrategy struct{}

// Validate ensures the plugin requested capabilities are allowed.
func (CapabilityStrategy) Validate(info Info, policy IsolationPolicy) error {
	for _, cap := range policy.DeniedCapabilities {
		if slices.Contains(info.Capabilities, cap) {
			return fmt.Errorf("capability %s is explicitly denied", cap)
		}
	}
	if len(policy.AllowedCapabilities) == 0 {
		return nil
	}
	for _, cap := range info.Capabilities {
		if !slices.Contains(policy.AllowedCapabilities, cap) {
			return fmt.Errorf("capability %s not permitted", cap)
		}
	}
	return nil
}

// Prepare implements IsolationStrategy.
func (CapabilityStrategy) Prepare(Info) error { return nil }

// Cleanup implements IsolationStrategy.
func (CapabilityStrategy) Cleanup(Info) error { return nil }

// NewIsolationStrategy returns a default isolation strategy if none is supplied.
func NewIsolationStrategy(strategy IsolationStrategy) IsolationStrategy {
	if strategy == nil {
		return CapabilityStrategy{}
	}
	return strategy
}

// MergePolicies combines the default and plugin specific isolation policies.
func MergePolicies(defaults IsolationPolicy, plugin *IsolationPolicy) IsolationPolicy {
	if plugin == nil {
		return defaults
	}
	merged := plugin.Merge(defaults)
	if merged.empty() {
		return defaults
	}
	return merged
}

// EnsurePolicy returns an error when a plugin asks to sign transactions without an explicit policy.
func EnsurePolicy(info Info, policy IsolationPolicy) error {
	if !slices.Contains(info.Capabilities, CapabilitySigning) {
		return nil
	}
	if len(policy.AllowedCapabilities) == 0 && len(policy.DeniedCapabilities) == 0 {
		return errors.New("plugins declaring the signing capability require an isolation policy")
	}
	return nil
}

// AllowsNetwork reports whether the policy lets the plugin submit to the named network.
func (p IsolationPolicy) AllowsNetwork(name string) bool {
	if len(p.AllowedNetworks) == 0 {
		return true
	}
	for _, allowed := range p.AllowedNetworks {
		if strings.EqualFold(strings.TrimSpace(allowed), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

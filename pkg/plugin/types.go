package plugin

// Type represents the functional category of a plugin.
type Type string

const (
	// TypeAction plugins contribute actions the agent runtime can select.
	TypeAction Type = "action"
	// TypeProvider plugins only contribute context providers.
	TypeProvider Type = "provider"
)

// Capability expresses optional features a plugin may request access to.
type Capability string

const (
	CapabilityNetwork Capability = "network"
	// CapabilitySigning allows a plugin to sign and submit transactions with the agent key.
	CapabilitySigning   Capability = "signing"
	CapabilityExecution Capability = "execution"
)

// Info contains descriptive metadata for a plugin implementation.
type Info struct {
	ID          string
	Name        string
	Description string
	Author      string
	// Version is the plugin's own semantic version.
	Version string
	// Requires is a semver constraint the host version must satisfy, e.g. ">= 0.1.0".
	Requires     string
	Category     Type
	Capabilities []Capability
}

// State represents the lifecycle position of a plugin instance.
type State string

const (
	StateRegistered  State = "registered"
	StateInitialised State = "initialised"
	StateStarted     State = "started"
	StateStopped     State = "stopped"
)

package movement

import (
	"errors"
	"log/slog"
	"strings"

	"ForesightX/internal/agent"
	"ForesightX/internal/storage/ledger"
	"ForesightX/internal/web3"
	"ForesightX/pkg/logger"
	"ForesightX/pkg/plugin"
)

// ID is the plugin identifier used in the plugin manifest.
const ID = "movement"

// Version of the movement plugin.
const Version = "0.1.0"

// Resource keys the plugin reads from the host during Init.
const (
	ResourceClients = "movement.clients"
	ResourceLedger  = "ledger"
)

// ClientSource resolves Movement network clients by name.
type ClientSource interface {
	Client(name string) (web3.Client, error)
	DefaultNetwork() string
}

// Plugin exposes the Movement actions and the wallet provider to the agent runtime.
type Plugin struct {
	clients        ClientSource
	ledger         ledger.Repository
	policy         plugin.IsolationPolicy
	defaultNetwork string
	log            *slog.Logger

	actions   []agent.Action
	providers []agent.Provider
}

var (
	_ plugin.Plugin      = (*Plugin)(nil)
	_ agent.ActionSource = (*Plugin)(nil)
)

// Option configures a Plugin.
type Option func(*Plugin)

// WithClientSource sets the network client source.
func WithClientSource(src ClientSource) Option {
	return func(p *Plugin) { p.clients = src }
}

// WithLedger sets where submitted transactions are recorded.
func WithLedger(repo ledger.Repository) Option {
	return func(p *Plugin) { p.ledger = repo }
}

// WithPolicy sets the isolation policy when the plugin is used without a manager.
func WithPolicy(policy plugin.IsolationPolicy) Option {
	return func(p *Plugin) { p.policy = policy }
}

// New builds the plugin. Resources supplied through the plugin manager fill
// in whatever the options leave unset.
func New(opts ...Option) *Plugin {
	p := &Plugin{log: logger.Named("movement")}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.wire()
	return p
}

func (p *Plugin) wire() {
	wallet := &WalletProvider{plugin: p}
	p.providers = []agent.Provider{wallet}
	p.actions = []agent.Action{
		&TransferAction{plugin: p},
		&CallContractAction{plugin: p, wallet: wallet},
		&PredictionMarketAction{plugin: p},
	}
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		ID:           ID,
		Name:         "movement",
		Description:  "Movement Network Plugin",
		Version:      Version,
		Requires:     ">= 0.1.0",
		Category:     plugin.TypeAction,
		Capabilities: []plugin.Capability{plugin.CapabilityNetwork, plugin.CapabilitySigning},
	}
}

// Configure implements plugin.Plugin. The optional "network" key overrides
// the registry default when MOVEMENT_NETWORK is not set.
func (p *Plugin) Configure(cfg map[string]any) error {
	if raw, ok := cfg["network"]; ok {
		name, ok := raw.(string)
		if !ok {
			return errors.New("movement: network must be a string")
		}
		p.defaultNetwork = strings.TrimSpace(name)
	}
	return nil
}

// Init implements plugin.Plugin.
func (p *Plugin) Init(ctx *plugin.ExecutionContext) error {
	if p.clients == nil {
		src, ok := plugin.Resource[ClientSource](ctx, ResourceClients)
		if !ok {
			return errors.New("movement: no network client source provided")
		}
		p.clients = src
	}
	if p.ledger == nil {
		if repo, ok := plugin.Resource[ledger.Repository](ctx, ResourceLedger); ok {
			p.ledger = repo
		}
	}
	p.policy = ctx.Policy
	p.defaultNetwork = ctx.String("network", p.defaultNetwork)
	return nil
}

// Start implements plugin.Plugin.
func (p *Plugin) Start(*plugin.ExecutionContext) error {
	p.log.Info("movement plugin started", "default_network", p.network(""), "actions", len(p.actions))
	return nil
}

// Stop implements plugin.Plugin.
func (p *Plugin) Stop(*plugin.ExecutionContext) error { return nil }

// Actions implements agent.ActionSource.
func (p *Plugin) Actions() []agent.Action { return p.actions }

// Providers implements agent.ActionSource.
func (p *Plugin) Providers() []agent.Provider { return p.providers }

// network picks the setting, then the configured default, then the registry default.
func (p *Plugin) network(setting string) string {
	if s := strings.TrimSpace(setting); s != "" {
		return s
	}
	if p.defaultNetwork != "" {
		return p.defaultNetwork
	}
	if p.clients != nil {
		return p.clients.DefaultNetwork()
	}
	return ""
}

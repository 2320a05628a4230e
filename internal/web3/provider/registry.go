package provider

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"ForesightX/internal/config"
	"ForesightX/internal/web3"
	"ForesightX/internal/web3/movement"
)

// Factory builds a client for a network definition.
type Factory func(network web3.Network) (web3.Client, error)

// Registry manages Movement clients keyed by network name. Clients are
// created lazily the first time a network is requested.
type Registry struct {
	defs           web3.NetworkDefinitions
	defaultNetwork string
	factory        Factory

	mu      sync.Mutex
	clients map[string]web3.Client
}

// Option customises the registry.
type Option func(*Registry)

// WithFactory replaces the client constructor, mainly for tests.
func WithFactory(factory Factory) Option {
	return func(r *Registry) {
		if factory != nil {
			r.factory = factory
		}
	}
}

// MovementFactory returns a Factory that builds REST clients with the
// transaction parameters from configuration.
func MovementFactory(cfg config.MovementConfig, httpClient *http.Client) Factory {
	return func(network web3.Network) (web3.Client, error) {
		return movement.NewClient(movement.Config{
			Network:      network,
			HTTPClient:   httpClient,
			MaxGasAmount: cfg.MaxGasAmount,
			Expiration:   cfg.Expiration(),
			WaitTimeout:  cfg.WaitTimeout(),
			PollInterval: cfg.PollInterval(),
		})
	}
}

// NewRegistry loads network definitions and prepares the registry.
func NewRegistry(cfg config.MovementConfig, opts ...Option) (*Registry, error) {
	defs, err := web3.LoadNetworkDefinitions(cfg.NetworksFile)
	if err != nil {
		return nil, err
	}
	return NewRegistryFromDefinitions(defs, cfg.DefaultNetwork, append([]Option{WithFactory(MovementFactory(cfg, nil))}, opts...)...)
}

// NewRegistryFromDefinitions builds a registry from already loaded definitions.
func NewRegistryFromDefinitions(defs web3.NetworkDefinitions, defaultNetwork string, opts ...Option) (*Registry, error) {
	if len(defs.Networks) == 0 {
		return nil, errors.New("未配置任何 Movement 网络")
	}
	r := &Registry{
		defs:    defs,
		clients: make(map[string]web3.Client),
		factory: func(network web3.Network) (web3.Client, error) {
			return movement.NewClient(movement.Config{Network: network})
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	name := strings.ToLower(strings.TrimSpace(defaultNetwork))
	if name == "" {
		name = defs.Default
	}
	if name == "" {
		name = defs.Names()[0]
	}
	if _, ok := defs.Lookup(name); !ok {
		return nil, fmt.Errorf("默认网络 %s 未在配置中找到", name)
	}
	r.defaultNetwork = name
	return r, nil
}

// DefaultNetwork returns the network used when no setting is present.
func (r *Registry) DefaultNetwork() string {
	if r == nil {
		return ""
	}
	return r.defaultNetwork
}

// Client returns the client for the named network; an empty name selects the
// default network.
func (r *Registry) Client(name string) (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的网络注册表")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.defaultNetwork
	}
	network, ok := r.defs.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("unknown movement network %q (available: %s)", name, strings.Join(r.defs.Names(), ", "))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, nil
	}
	client, err := r.factory(network)
	if err != nil {
		return nil, fmt.Errorf("初始化网络 %s 失败: %w", key, err)
	}
	r.clients[key] = client
	return client, nil
}

// Network returns the definition of a named network.
func (r *Registry) Network(name string) (web3.Network, bool) {
	if r == nil {
		return web3.Network{}, false
	}
	return r.defs.Lookup(name)
}

// Close releases all clients created by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Networks returns the list of configured network names.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	names := r.defs.Names()
	sort.Strings(names)
	return names
}

package web3

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var defaultNetworksYAML []byte

// DefaultExplorerURL is the Movement block explorer.
const DefaultExplorerURL = "https://explorer.movementnetwork.xyz"

// NetworkDefinitions models the structure of networks.yaml.
type NetworkDefinitions struct {
	Default  string             `yaml:"default"`
	Networks map[string]Network `yaml:"networks"`
}

// Network describes a single Movement network endpoint.
type Network struct {
	Name            string `yaml:"-"`
	FullnodeURL     string `yaml:"fullnode"`
	ChainID         uint8  `yaml:"chain_id"`
	ExplorerURL     string `yaml:"explorer_url"`
	ExplorerNetwork string `yaml:"explorer_network"`
	Description     string `yaml:"description"`
}

// ExplorerTxURL returns the explorer link for a transaction hash.
func (n Network) ExplorerTxURL(hash string) string {
	base := strings.TrimRight(n.ExplorerURL, "/")
	if base == "" {
		base = DefaultExplorerURL
	}
	return fmt.Sprintf("%s/txn/%s?network=%s", base, hash, n.ExplorerNetwork)
}

// DefaultNetworks returns the built-in mainnet and bardock definitions.
func DefaultNetworks() NetworkDefinitions {
	defs, err := parseNetworkDefinitions(defaultNetworksYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded networks.yaml is invalid: %v", err))
	}
	return defs
}

// LoadNetworkDefinitions parses a networks file and merges it over the
// built-in definitions. An empty path returns the built-in definitions.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	defs := DefaultNetworks()
	if strings.TrimSpace(path) == "" {
		return defs, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, fmt.Errorf("读取网络配置失败: %w", err)
	}
	custom, err := parseNetworkDefinitions(content)
	if err != nil {
		return NetworkDefinitions{}, err
	}
	for name, network := range custom.Networks {
		defs.Networks[name] = network
	}
	if custom.Default != "" {
		defs.Default = custom.Default
	}
	return defs, nil
}

// Lookup returns the named network. Names are case-insensitive.
func (d NetworkDefinitions) Lookup(name string) (Network, bool) {
	network, ok := d.Networks[strings.ToLower(strings.TrimSpace(name))]
	return network, ok
}

// Names returns the sorted network names.
func (d NetworkDefinitions) Names() []string {
	names := make([]string, 0, len(d.Networks))
	for name := range d.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseNetworkDefinitions(content []byte) (NetworkDefinitions, error) {
	var raw NetworkDefinitions
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	defs := NetworkDefinitions{
		Default:  strings.ToLower(strings.TrimSpace(raw.Default)),
		Networks: make(map[string]Network, len(raw.Networks)),
	}
	for name, network := range raw.Networks {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return NetworkDefinitions{}, fmt.Errorf("网络名称不能为空")
		}
		if _, err := url.ParseRequestURI(network.FullnodeURL); err != nil {
			return NetworkDefinitions{}, fmt.Errorf("网络 %s 的 fullnode 地址无效: %w", name, err)
		}
		network.Name = key
		network.FullnodeURL = strings.TrimRight(network.FullnodeURL, "/")
		if network.ExplorerURL == "" {
			network.ExplorerURL = DefaultExplorerURL
		}
		if network.ExplorerNetwork == "" {
			network.ExplorerNetwork = key
		}
		defs.Networks[key] = network
	}
	return defs, nil
}

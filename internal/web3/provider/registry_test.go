package provider

import (
	"context"
	"strings"
	"testing"

	"ForesightX/internal/config"
	"ForesightX/internal/web3"
)

type stubClient struct {
	network web3.Network
	closed  bool
}

func (s *stubClient) Network() web3.Network { return s.network }
func (s *stubClient) LedgerInfo(context.Context) (web3.LedgerInfo, error) {
	return web3.LedgerInfo{ChainID: s.network.ChainID}, nil
}
func (s *stubClient) Balance(context.Context, string) (uint64, error) { return 0, nil }
func (s *stubClient) SubmitEntryFunction(context.Context, web3.Signer, web3.EntryFunction) (*web3.TransactionResult, error) {
	return &web3.TransactionResult{}, nil
}
func (s *stubClient) ExplorerURL(hash string) string { return s.network.ExplorerTxURL(hash) }
func (s *stubClient) Close()                         { s.closed = true }

func TestRegistryLazyClients(t *testing.T) {
	created := map[string]*stubClient{}
	reg, err := NewRegistry(config.MovementConfig{}, WithFactory(func(n web3.Network) (web3.Client, error) {
		c := &stubClient{network: n}
		created[n.Name] = c
		return c, nil
	}))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if reg.DefaultNetwork() != "bardock" {
		t.Fatalf("unexpected default: %s", reg.DefaultNetwork())
	}

	client, err := reg.Client("")
	if err != nil {
		t.Fatalf("default client: %v", err)
	}
	if client.Network().ChainID != 250 {
		t.Fatalf("unexpected default chain id %d", client.Network().ChainID)
	}
	again, _ := reg.Client("BARDOCK")
	if again != client {
		t.Fatalf("client should be cached")
	}
	if _, err := reg.Client("mainnet"); err != nil {
		t.Fatalf("mainnet client: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected two clients, got %d", len(created))
	}

	reg.Close()
	for name, c := range created {
		if !c.closed {
			t.Fatalf("client %s not closed", name)
		}
	}
}

func TestRegistryUnknownNetwork(t *testing.T) {
	reg, err := NewRegistry(config.MovementConfig{DefaultNetwork: "mainnet"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	_, err = reg.Client("devnet")
	if err == nil || !strings.Contains(err.Error(), "bardock, mainnet") {
		t.Fatalf("expected unknown network error listing networks, got %v", err)
	}
	if got := reg.Networks(); len(got) != 2 {
		t.Fatalf("unexpected networks: %v", got)
	}
}

func TestRegistryRejectsUnknownDefault(t *testing.T) {
	if _, err := NewRegistry(config.MovementConfig{DefaultNetwork: "devnet"}); err == nil {
		t.Fatalf("expected error for unknown default network")
	}
}

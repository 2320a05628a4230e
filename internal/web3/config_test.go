package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultNetworks(t *testing.T) {
	defs := DefaultNetworks()
	if defs.Default != "bardock" {
		t.Fatalf("unexpected default network: %s", defs.Default)
	}
	mainnet, ok := defs.Lookup("MAINNET")
	if !ok {
		t.Fatalf("mainnet missing")
	}
	if mainnet.FullnodeURL != "https://mainnet.movementnetwork.xyz/v1" || mainnet.ChainID != 126 {
		t.Fatalf("unexpected mainnet: %+v", mainnet)
	}
	bardock, _ := defs.Lookup("bardock")
	if got := bardock.ExplorerTxURL("0xabc"); got != "https://explorer.movementnetwork.xyz/txn/0xabc?network=bardock+testnet" {
		t.Fatalf("unexpected explorer url: %s", got)
	}
	if names := defs.Names(); len(names) != 2 || names[0] != "bardock" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestLoadNetworkDefinitionsMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	content := `default: local
networks:
  local:
    fullnode: http://127.0.0.1:8080/v1/
    chain_id: 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	defs, err := LoadNetworkDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	local, ok := defs.Lookup("local")
	if !ok {
		t.Fatalf("local network missing")
	}
	if local.FullnodeURL != "http://127.0.0.1:8080/v1" || local.ExplorerNetwork != "local" {
		t.Fatalf("unexpected local network: %+v", local)
	}
	if defs.Default != "local" {
		t.Fatalf("default not overridden: %s", defs.Default)
	}
	if _, ok := defs.Lookup("mainnet"); !ok {
		t.Fatalf("built-in networks should remain")
	}
}

func TestLoadNetworkDefinitionsRejectsBadURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	if err := os.WriteFile(path, []byte("networks:\n  broken:\n    fullnode: not a url\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadNetworkDefinitions(path); err == nil {
		t.Fatalf("expected error for invalid fullnode url")
	}
}

func TestEntryFunction(t *testing.T) {
	fn := NewEntryFunction("0x1", "aptos_account", "transfer", "0x2", "100")
	if fn.Function != "0x1::aptos_account::transfer" {
		t.Fatalf("unexpected function id: %s", fn.Function)
	}
	if err := fn.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := (EntryFunction{Function: "0x1::::transfer"}).Validate(); err == nil {
		t.Fatalf("expected error for empty module")
	}
	if empty := NewEntryFunction("0x1", "m", "f"); empty.Arguments == nil {
		t.Fatalf("arguments should never be nil")
	}
}

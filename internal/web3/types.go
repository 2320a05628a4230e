package web3

import (
	"context"
	"fmt"
	"strings"
)

// EntryFunction identifies a Move entry function call. Function has the
// fully qualified form <address>::<module>::<function>.
type EntryFunction struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// NewEntryFunction joins the address, module and function name.
func NewEntryFunction(address, module, function string, args ...any) EntryFunction {
	if args == nil {
		args = []any{}
	}
	return EntryFunction{
		Function:      fmt.Sprintf("%s::%s::%s", address, module, function),
		TypeArguments: []string{},
		Arguments:     args,
	}
}

// Validate checks that the function identifier has three non-empty parts.
func (f EntryFunction) Validate() error {
	parts := strings.Split(f.Function, "::")
	if len(parts) != 3 {
		return fmt.Errorf("invalid function identifier %q", f.Function)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return fmt.Errorf("invalid function identifier %q", f.Function)
		}
	}
	return nil
}

// LedgerInfo summarises the fullnode ledger state.
type LedgerInfo struct {
	ChainID       uint8  `json:"chain_id"`
	Epoch         string `json:"epoch"`
	LedgerVersion string `json:"ledger_version"`
	BlockHeight   string `json:"block_height"`
	NodeRole      string `json:"node_role"`
}

// TransactionResult captures a committed transaction.
type TransactionResult struct {
	Hash      string `json:"hash"`
	Version   string `json:"version"`
	Sender    string `json:"sender"`
	Success   bool   `json:"success"`
	VMStatus  string `json:"vm_status"`
	GasUsed   string `json:"gas_used"`
	Timestamp string `json:"timestamp"`
}

// Signer produces ed25519 signatures for a Movement account.
type Signer interface {
	Address() string
	PublicKeyHex() string
	Sign(message []byte) []byte
}

// Client defines what the actions need from a Movement network.
type Client interface {
	Network() Network
	LedgerInfo(ctx context.Context) (LedgerInfo, error)
	Balance(ctx context.Context, address string) (uint64, error)
	SubmitEntryFunction(ctx context.Context, signer Signer, fn EntryFunction) (*TransactionResult, error)
	ExplorerURL(hash string) string
	Close()
}

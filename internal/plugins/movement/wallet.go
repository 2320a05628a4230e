package movement

import (
	"context"
	"fmt"

	"ForesightX/internal/agent"
	xerrors "ForesightX/internal/errors"
)

// WalletProvider injects the agent's Movement address and MOVE balance into the state.
type WalletProvider struct {
	plugin *Plugin
}

var _ agent.Provider = (*WalletProvider)(nil)

// Name implements agent.Provider.
func (w *WalletProvider) Name() string { return "movementWallet" }

// Get implements agent.Provider. It returns nothing when no key is configured.
func (w *WalletProvider) Get(ctx context.Context, rt agent.Runtime, _ *agent.Memory, _ agent.State) (string, error) {
	s, err := w.plugin.connect(rt)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeConfigMissing {
			return "", nil
		}
		return "", err
	}
	return w.describe(ctx, s)
}

func (w *WalletProvider) describe(ctx context.Context, s *session) (string, error) {
	octas, err := s.client.Balance(ctx, s.account.Address())
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "")
	}
	return fmt.Sprintf("Movement Wallet Address: %s\nBalance: %s MOVE", s.account.Address(), FormatOctas(octas)), nil
}

package movement

import (
	"context"
	"fmt"
	"time"

	"ForesightX/internal/agent"
	"ForesightX/internal/config"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/storage/ledger"
	"ForesightX/internal/web3"
	"ForesightX/internal/web3/movement"
	"ForesightX/pkg/logger"
)

const anonymousCreator = "anonymous"

// session is the signer and client used by one handler invocation.
type session struct {
	account *movement.Account
	client  web3.Client
	network web3.Network
}

// connect reads the account key and network from the runtime settings.
func (p *Plugin) connect(rt agent.Runtime) (*session, error) {
	key := rt.GetSetting(config.SettingPrivateKey)
	if key == "" {
		return nil, xerrors.New(xerrors.CodeConfigMissing, config.SettingPrivateKey+" is not configured")
	}
	account, err := movement.ParsePrivateKey(key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigMissing, err, "invalid "+config.SettingPrivateKey)
	}

	name := p.network(rt.GetSetting(config.SettingNetwork))
	if !p.policy.AllowsNetwork(name) {
		return nil, xerrors.New(xerrors.CodeUnauthorized, fmt.Sprintf("network %q is not allowed for the movement plugin", name))
	}
	if p.clients == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "movement plugin is not initialised")
	}
	client, err := p.clients.Client(name)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigMissing, err, "unsupported "+config.SettingNetwork)
	}
	return &session{account: account, client: client, network: client.Network()}, nil
}

// submit sends fn and records the outcome in the ledger.
func (p *Plugin) submit(ctx context.Context, s *session, action string, fn web3.EntryFunction, market *PredictionMarketContent) (*web3.TransactionResult, string, error) {
	result, err := s.client.SubmitEntryFunction(ctx, s.account, fn)
	if result == nil {
		return nil, "", err
	}
	explorerURL := s.client.ExplorerURL(result.Hash)
	p.record(ctx, s, action, fn, market, result, explorerURL)
	return result, explorerURL, err
}

func (p *Plugin) record(ctx context.Context, s *session, action string, fn web3.EntryFunction, market *PredictionMarketContent, result *web3.TransactionResult, explorerURL string) {
	if p.ledger == nil {
		return
	}
	rec := &ledger.Record{
		Action:      action,
		Hash:        result.Hash,
		Function:    fn.Function,
		Arguments:   fn.Arguments,
		Sender:      s.account.Address(),
		Network:     s.network.Name,
		ExplorerURL: explorerURL,
		Success:     result.Success,
		VMStatus:    result.VMStatus,
		CreatedAt:   time.Now().UTC(),
	}
	if market != nil {
		rec.MarketQuestion = market.MarketQuestion
		rec.MarketSlug = Slug(market.MarketQuestion)
		rec.Creator = market.Creator()
	}
	// 账本写入失败不影响已上链的结果。
	if err := p.ledger.Save(context.WithoutCancel(ctx), rec); err != nil {
		p.log.Warn("record transaction failed", "hash", result.Hash, "error", err)
	}
}

// composeState refreshes recent messages, or composes a fresh state when none was passed.
func composeState(ctx context.Context, rt agent.Runtime, msg *agent.Memory, state agent.State) (agent.State, error) {
	if state == nil {
		return rt.ComposeState(ctx, msg)
	}
	return rt.UpdateRecentMessageState(ctx, state)
}

func reply(ctx context.Context, cb agent.HandlerCallback, content agent.Content) {
	if cb == nil {
		return
	}
	// Delivery failures do not change the action result.
	if err := cb(ctx, content); err != nil {
		logger.Named("movement").Warn("callback failed", "action", content.Action, "error", err)
	}
}

func errorContent(action string, text string, err error) agent.Content {
	msg := xerrors.UserMessage(err)
	return agent.Content{
		Text:   text + msg,
		Action: action,
		Fields: map[string]any{"error": msg},
	}
}

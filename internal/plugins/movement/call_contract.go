package movement

import (
	"context"
	"strings"

	"ForesightX/internal/agent"
	"ForesightX/internal/web3"
)

// ActionCallContract is the name of the contract call action.
const ActionCallContract = "CALL_CONTRACT"

// CallContractAction calls an arbitrary Move entry function described in the message.
type CallContractAction struct {
	plugin *Plugin
	wallet *WalletProvider
}

var _ agent.Action = (*CallContractAction)(nil)

func (a *CallContractAction) Name() string { return ActionCallContract }

func (a *CallContractAction) Similes() []string {
	return []string{"EXECUTE_FUNCTION", "CALL_FUNCTION", "RUN_FUNCTION", "TEST_CONTRACT"}
}

func (a *CallContractAction) Triggers() []string {
	return []string{"call contract", "execute function", "call function", "test contract", "run function"}
}

func (a *CallContractAction) Description() string {
	return "Call a smart contract function with specified arguments"
}

func (a *CallContractAction) Priority() int { return 1000 }

// ShouldHandle matches messages that ask to call, execute or run something at a 0x address.
func (a *CallContractAction) ShouldHandle(msg *agent.Memory) bool {
	text := strings.ToLower(msg.Text())
	return (strings.Contains(text, "call") || strings.Contains(text, "execute") || strings.Contains(text, "run")) &&
		strings.Contains(text, "0x")
}

func (a *CallContractAction) Validate(_ context.Context, _ agent.Runtime, msg *agent.Memory) bool {
	a.plugin.log.Debug("validating contract call", "user", msg.UserID, "text", msg.Text())
	return true
}

// Handle extracts the call from the conversation, submits it and reports the transaction.
func (a *CallContractAction) Handle(ctx context.Context, rt agent.Runtime, msg *agent.Memory, state agent.State, _ map[string]any, cb agent.HandlerCallback) bool {
	log := a.plugin.log.With("action", ActionCallContract, "message", msg.ID)

	s, err := a.plugin.connect(rt)
	if err != nil {
		log.Warn("contract call setup failed", "error", err)
		reply(ctx, cb, errorContent(ActionCallContract, "Error calling contract function: ", err))
		return false
	}

	current, err := composeState(ctx, rt, msg, state)
	if err != nil {
		reply(ctx, cb, errorContent(ActionCallContract, "Error calling contract function: ", err))
		return false
	}
	if info, err := a.wallet.describe(ctx, s); err == nil {
		current[agent.KeyWalletInfo] = info
	} else {
		log.Debug("wallet info unavailable", "error", err)
	}

	var content ContractCallContent
	if err := generateContent(ctx, rt, current, callContractTemplate, callContractSchema, &content); err != nil {
		if !isInvalidContent(err) {
			log.Warn("contract call generation failed", "error", err)
			reply(ctx, cb, errorContent(ActionCallContract, "Error calling contract function: ", err))
			return false
		}
		log.Warn("invalid contract call content", "error", err)
		reply(ctx, cb, agent.Content{
			Text:   "Unable to process contract call request. Invalid content provided.",
			Action: ActionCallContract,
			Fields: map[string]any{"error": "Invalid contract call content"},
		})
		return false
	}

	fn := web3.NewEntryFunction(content.ContractAddress, content.Module, content.Function, content.Arguments...)
	result, explorerURL, err := a.plugin.submit(ctx, s, ActionCallContract, fn, nil)
	if err != nil {
		log.Warn("contract call failed", "function", fn.Function, "error", err)
		reply(ctx, cb, errorContent(ActionCallContract, "Error calling contract function: ", err))
		return false
	}

	log.Debug("contract call successful", "hash", result.Hash, "function", fn.Function, "explorer", explorerURL)
	reply(ctx, cb, agent.Content{
		Text:   "Successfully called " + content.FunctionID() + "\nTransaction: " + result.Hash + "\nView on Explorer: " + explorerURL,
		Action: ActionCallContract,
		Fields: map[string]any{
			"success":         true,
			"hash":            result.Hash,
			"contractAddress": content.ContractAddress,
			"module":          content.Module,
			"function":        content.Function,
			"arguments":       content.Arguments,
			"explorerUrl":     explorerURL,
		},
	})
	return true
}

func (a *CallContractAction) Examples() [][]agent.ActionExample {
	return [][]agent.ActionExample{
		{
			{User: "{{user1}}", Content: agent.Content{Text: "call the 0x123::calculator::add with arg1 as 4, arg2 as 5"}},
			{User: "{{user2}}", Content: agent.Content{Text: "Processing contract function call...", Action: ActionCallContract}},
		},
		{
			{User: "{{user1}}", Content: agent.Content{Text: "execute 0x123::module::function with the following arg1 as 4, arg2 as 5, arg3 as Paul"}},
			{User: "{{user2}}", Content: agent.Content{Text: "Executing contract function...", Action: ActionCallContract}},
		},
	}
}

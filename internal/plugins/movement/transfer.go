package movement

import (
	"context"
	"strings"

	"ForesightX/internal/agent"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/web3"
	"ForesightX/internal/web3/movement"
)

// ActionTransfer is the name of the MOVE transfer action.
const ActionTransfer = "TRANSFER_MOVE"

// TransferAction sends MOVE from the agent account through 0x1::aptos_account::transfer.
type TransferAction struct {
	plugin *Plugin
}

var _ agent.Action = (*TransferAction)(nil)

func (a *TransferAction) Name() string { return ActionTransfer }

func (a *TransferAction) Similes() []string {
	return []string{"TRANSFER_TOKEN", "TRANSFER_TOKENS", "SEND_TOKEN", "SEND_TOKENS", "PAY", "SEND_MOVE"}
}

func (a *TransferAction) Triggers() []string {
	return []string{"send move", "transfer move", "send tokens", "transfer tokens", "pay"}
}

func (a *TransferAction) Description() string {
	return "Transfer MOVE tokens from the agent wallet to another address"
}

func (a *TransferAction) Priority() int { return 1000 }

// ShouldHandle matches send, transfer and pay requests that name a 0x address.
func (a *TransferAction) ShouldHandle(msg *agent.Memory) bool {
	text := strings.ToLower(msg.Text())
	return (strings.Contains(text, "send") || strings.Contains(text, "transfer") || strings.Contains(text, "pay")) &&
		strings.Contains(text, "0x")
}

func (a *TransferAction) Validate(context.Context, agent.Runtime, *agent.Memory) bool { return true }

// Handle extracts the recipient and amount and submits the transfer.
func (a *TransferAction) Handle(ctx context.Context, rt agent.Runtime, msg *agent.Memory, state agent.State, _ map[string]any, cb agent.HandlerCallback) bool {
	log := a.plugin.log.With("action", ActionTransfer, "message", msg.ID)
	fail := func(err error) bool {
		log.Warn("transfer failed", "error", err)
		reply(ctx, cb, errorContent(ActionTransfer, "Error transferring tokens: ", err))
		return false
	}

	s, err := a.plugin.connect(rt)
	if err != nil {
		return fail(err)
	}
	current, err := composeState(ctx, rt, msg, state)
	if err != nil {
		return fail(err)
	}

	var content TransferContent
	if err := generateContent(ctx, rt, current, transferTemplate, transferSchema, &content); err != nil {
		if !isInvalidContent(err) {
			return fail(err)
		}
		log.Debug("transfer content rejected", "error", err)
		reply(ctx, cb, agent.Content{
			Text:   "Unable to process transfer request. Invalid content provided.",
			Action: ActionTransfer,
			Fields: map[string]any{"error": "Invalid transfer content"},
		})
		return false
	}

	recipient, err := movement.NormalizeAddress(content.Recipient)
	if err != nil {
		return fail(xerrors.Wrap(xerrors.CodeInvalidContent, err, "invalid recipient address"))
	}
	octas, err := ParseMoveAmount(content.Amount)
	if err != nil {
		return fail(xerrors.Wrap(xerrors.CodeInvalidContent, err, err.Error()))
	}

	fn := web3.NewEntryFunction("0x1", "aptos_account", "transfer", recipient, octas)
	result, explorerURL, err := a.plugin.submit(ctx, s, ActionTransfer, fn, nil)
	if err != nil {
		return fail(err)
	}

	amount := FormatOctas(octas)
	reply(ctx, cb, agent.Content{
		Text:   "Successfully transferred " + amount + " MOVE to " + recipient + "\nTransaction: " + result.Hash + "\nView on Explorer: " + explorerURL,
		Action: ActionTransfer,
		Fields: map[string]any{
			"success":     true,
			"hash":        result.Hash,
			"amount":      amount,
			"octas":       octas,
			"recipient":   recipient,
			"explorerUrl": explorerURL,
		},
	})
	return true
}

func (a *TransferAction) Examples() [][]agent.ActionExample {
	return [][]agent.ActionExample{
		{
			{User: "{{user1}}", Content: agent.Content{Text: "Send 1.5 MOVE to 0x2badda48c062e861ef17a96a806c451fd296a49f45b272dee17f85b0e32663fd"}},
			{User: "{{user2}}", Content: agent.Content{Text: "Sending 1.5 MOVE now...", Action: ActionTransfer}},
		},
	}
}

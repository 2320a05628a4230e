package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ForesightX/internal/agent"
	"ForesightX/internal/app"
	"ForesightX/internal/plugins/movement"
)

// sourceCLI 标识命令行发出的消息。
const sourceCLI = "cli"

var (
	msgUser        string
	msgRoom        string
	msgTwitterUser string
)

func init() {
	for _, cmd := range []*cobra.Command{callCmd, predictCmd, transferCmd} {
		cmd.Flags().StringVarP(&msgUser, "user", "u", "cli", "User id the message is sent as")
		cmd.Flags().StringVarP(&msgRoom, "room", "r", "", "Room id (default: the user id)")
		cmd.Flags().StringVar(&msgTwitterUser, "twitter-user", "", "Treat the message as a tweet from this username")
		rootCmd.AddCommand(cmd)
	}
}

var callCmd = &cobra.Command{
	Use:   "call <text>",
	Short: "Call a Move entry function described in plain text",
	Long: `Runs the CALL_CONTRACT action once against the configured network.

Example:
  foresightx call "call 0x123::calculator::add with arg1 as 4, arg2 as 5"`,
	Args: cobra.MinimumNArgs(1),
	RunE: actionRunner(movement.ActionCallContract),
}

var predictCmd = &cobra.Command{
	Use:   "predict <question>",
	Short: "Create a prediction market for a question",
	Long: `Runs the CREATE_PREDICTION_MARKET action once. PREDICTION_MARKET_CONTRACT
must be set in the config settings or the environment.

Example:
  foresightx predict "Will Bitcoin hit $100k in 2025?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: actionRunner(movement.ActionCreatePredictionMarket),
}

var transferCmd = &cobra.Command{
	Use:   "transfer <text>",
	Short: "Transfer MOVE tokens",
	Long: `Runs the TRANSFER_MOVE action once.

Example:
  foresightx transfer "send 1.5 MOVE to 0xabc..."`,
	Args: cobra.MinimumNArgs(1),
	RunE: actionRunner(movement.ActionTransfer),
}

func actionRunner(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Runtime.ActionTimeout()+30*time.Second)
		defer cancel()
		return runMessage(ctx, a.Agent, cmd.OutOrStdout(), buildMemory(action, strings.Join(args, " ")))
	}
}

func buildMemory(action, text string) *agent.Memory {
	msg := &agent.Memory{
		ID:     uuid.NewString(),
		UserID: msgUser,
		RoomID: msgRoom,
		Content: agent.Content{
			Text:   text,
			Action: action,
			Source: sourceCLI,
		},
		CreatedAt: time.Now().UTC(),
	}
	if msgTwitterUser != "" {
		msg.Context.Twitter = &agent.TwitterContext{Username: strings.TrimPrefix(msgTwitterUser, "@")}
		msg.Content.Source = "twitter"
	}
	return msg
}

// messageProcessor 是 runMessage 需要的智能体能力。
type messageProcessor interface {
	Process(ctx context.Context, msg *agent.Memory, cb agent.HandlerCallback) (*agent.Result, error)
}

// runMessage 处理一条消息并把回调内容逐条打印出来。动作失败返回错误。
func runMessage(ctx context.Context, p messageProcessor, out io.Writer, msg *agent.Memory) error {
	result, err := p.Process(ctx, msg, func(_ context.Context, content agent.Content) error {
		_, werr := fmt.Fprintln(out, content.Text)
		return werr
	})
	if err != nil {
		return err
	}
	if result.Handled && !result.Success {
		return fmt.Errorf("%s failed", result.Action)
	}
	return nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ForesightX/sdk/go/foresightx"
)

var (
	sendServer string
	sendToken  string
	sendUser   string
	sendRoom   string
	sendAction string
	sendWait   bool
)

func init() {
	sendCmd.Flags().StringVarP(&sendServer, "server", "s", "", "API base URL (default derived from server.address)")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "Bearer token for an auth-enabled server")
	sendCmd.Flags().StringVarP(&sendUser, "user", "u", "", "Sender user id (defaults to the token subject)")
	sendCmd.Flags().StringVarP(&sendRoom, "room", "r", "", "Conversation room id")
	sendCmd.Flags().StringVar(&sendAction, "action", "", "Force an action by name or simile")
	sendCmd.Flags().BoolVarP(&sendWait, "wait", "w", true, "Wait for the agent to answer")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a message to a running ForesightX server",
	Long: `Example:
  foresightx send --server http://localhost:8080 "Will BTC close above 100k this year?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := foresightx.NewClient(serverURL(sendServer, cfg.Server.Address), nil)
		if err != nil {
			return err
		}
		client.SetAccessToken(sendToken)

		task, err := client.SubmitMessage(cmd.Context(), foresightx.Message{
			UserID: sendUser,
			RoomID: sendRoom,
			Text:   strings.Join(args, " "),
			Action: sendAction,
			Source: "cli",
		}, sendWait)
		if err != nil {
			return err
		}
		return printTask(cmd, task)
	},
}

func printTask(cmd *cobra.Command, task *foresightx.Task) error {
	out := cmd.OutOrStdout()
	if !task.Done() {
		_, err := fmt.Fprintf(out, "task %s is %s\n", task.ID, task.Status)
		return err
	}
	if task.Result == nil {
		return fmt.Errorf("task %s %s: %s", task.ID, task.Status, task.LastError)
	}
	replies := task.Result.Replies
	if len(replies) == 0 && task.Result.Reply != "" {
		replies = []string{task.Result.Reply}
	}
	for _, text := range replies {
		if _, err := fmt.Fprintln(out, text); err != nil {
			return err
		}
	}
	if task.Result.Handled && !task.Result.Success {
		return fmt.Errorf("action %s did not succeed", task.Result.Action)
	}
	return nil
}

// serverURL 将 ":8080" 这类监听地址转换为本机可访问的 URL。
func serverURL(flag, listen string) string {
	if flag != "" {
		return flag
	}
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen
}

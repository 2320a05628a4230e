package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ForesightX/internal/plugins/movement"
)

func init() {
	rootCmd.AddCommand(slugCmd)
}

var slugCmd = &cobra.Command{
	Use:   "slug <question>",
	Short: "Print the market slug and link for a question",
	Long: `Example:
  foresightx slug "Will ETH flip BTC"
  # will_eth_flip_btc
  # https://prediction-bice.vercel.app/market/will_eth_flip_btc`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", movement.Slug(question), movement.MarketURL(question))
		return err
	},
}

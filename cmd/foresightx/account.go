package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ForesightX/internal/config"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/plugins/movement"
	web3movement "ForesightX/internal/web3/movement"
	"ForesightX/internal/web3/provider"
)

var accountBalance bool

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.Flags().BoolVarP(&accountBalance, "balance", "b", false, "Query the MOVE balance on the selected network")
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the address derived from MOVEMENT_PRIVATE_KEY",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key := cfg.Setting(config.SettingPrivateKey)
		if key == "" {
			return xerrors.New(xerrors.CodeConfigMissing, config.SettingPrivateKey+" is not configured")
		}
		account, err := web3movement.ParsePrivateKey(key)
		if err != nil {
			return err
		}

		registry, err := provider.NewRegistry(cfg.Movement)
		if err != nil {
			return err
		}
		defer registry.Close()
		network := cfg.Setting(config.SettingNetwork)
		if network == "" {
			network = registry.DefaultNetwork()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Address:    %s\n", account.Address())
		fmt.Fprintf(out, "Public key: %s\n", account.PublicKeyHex())
		fmt.Fprintf(out, "Network:    %s\n", network)
		if !accountBalance {
			return nil
		}
		client, err := registry.Client(network)
		if err != nil {
			return err
		}
		octas, err := client.Balance(cmd.Context(), account.Address())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "Balance:    %s MOVE\n", movement.FormatOctas(octas))
		return err
	},
}

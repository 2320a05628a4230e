package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ForesightX/internal/auth"
)

var (
	tokenTTL         time.Duration
	tokenPermissions []string
	tokenRoles       []string
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringSliceVar(&tokenPermissions, "permissions", nil,
		"Granted permissions (default "+strings.Join(auth.DefaultPermissions, ",")+")")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "roles", nil, "Roles recorded in the token")
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint an API bearer token with the configured auth secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := auth.NewService(auth.Config{Enabled: true, Secret: cfg.Auth.Secret, Issuer: cfg.Auth.Issuer})
		if err != nil {
			return err
		}
		token, expires, err := svc.Issue(&auth.Subject{
			ID:          args[0],
			Roles:       tokenRoles,
			Permissions: tokenPermissions,
		}, tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n# expires %s\n", token, expires.Format(time.RFC3339))
		return err
	},
}

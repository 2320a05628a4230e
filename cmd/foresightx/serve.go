package main

import (
	"github.com/spf13/cobra"

	"ForesightX/internal/app"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (overrides server.address)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, websocket stream and message workers",
	Long: `Starts the message processor and the HTTP API.

Example:
  foresightx serve
  foresightx serve -a :9090 -c configs/foresightx.json`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.Server.Address = serveAddr
	}
	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(cmd.Context())
}

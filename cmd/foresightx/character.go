package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ForesightX/internal/character"
)

var characterJSON bool

func init() {
	rootCmd.AddCommand(characterCmd)
	characterCmd.AddCommand(characterShowCmd)
	characterShowCmd.Flags().BoolVar(&characterJSON, "json", false, "Print JSON instead of YAML")
}

var characterCmd = &cobra.Command{
	Use:   "character",
	Short: "Inspect the chat persona",
}

var characterShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active character without secrets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		char := character.Default()
		if cfg.Runtime.CharacterFile != "" {
			loaded, err := character.Load(cfg.Runtime.CharacterFile)
			if err != nil {
				return err
			}
			char = loaded
		}
		char.Settings.Secrets = nil

		out := cmd.OutOrStdout()
		if characterJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(char)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(char)
	},
}

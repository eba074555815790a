package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "mailctl",
		Short: "CLI tool for the proxymail API",
		Long: `mailctl talks to a proxymail server over its JSON API.

It can send and broadcast mail, page through a player's inbox, delete mail,
look up usernames and trigger maintenance such as cleanup of old mail.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load token from file if not provided via flag/env
			if err := cfg.LoadToken(); err != nil {
				return err
			}

			client = NewClient(cfg.ServerURL, cfg.Token)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: PROXYMAIL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "API token (env: PROXYMAIL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: PROXYMAIL_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")

	// Add subcommands
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newBroadcastCmd())
	rootCmd.AddCommand(newInboxCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newLookupCmd())
	rootCmd.AddCommand(newUsersCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newTokenCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

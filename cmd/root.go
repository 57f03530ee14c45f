// Package cmd implements the wabridge command tree: the serve daemon and a
// small HTTP client for poking a running bridge from the terminal.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uteqlabs/wabridge/internal/config"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wabridge",
		Short: "WhatsApp session bridge for the school messaging dashboard",
		Long: "wabridge keeps one WhatsApp Web session alive and exposes it over " +
			"HTTP and WebSocket: QR pairing, session status, and batch message dispatch.",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.wabridge/wabridge.yaml)")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(qrCmd())
	cmd.AddCommand(logoutCmd())
	cmd.AddCommand(sendCmd())
	return cmd
}

// Execute runs the CLI. Called from main.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

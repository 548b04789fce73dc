package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acormier/vireo/internal/adapter"
)

var configSetUsername string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVar(&configSetUsername, "set-username", "", "Set the sync account and save")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configSetUsername != "" {
		// Load first so the write keeps the rest of the file intact
		if _, err := adapter.LoadConfig(); err != nil {
			return err
		}
		if err := adapter.SaveUsername(configSetUsername); err != nil {
			return err
		}
		fmt.Printf("Sync account set to %s\n", configSetUsername)
		return nil
	}

	cfg, err := adapter.LoadConfig()
	if err != nil {
		return err
	}

	username := cfg.Account.Username
	if username == "" {
		username = "(not set)"
	}

	fmt.Printf("Account:    %s\n", username)
	fmt.Printf("Locale:     %s (place %d)\n", cfg.Account.Locale, cfg.Account.PlaceID)
	fmt.Printf("API:        %s\n", cfg.API.BaseURL)
	fmt.Printf("Sync:       %d workers, %d rows per page, casual=%t\n",
		cfg.Sync.Workers, cfg.Sync.PageSize, cfg.Sync.Casual)
	fmt.Printf("Data dir:   %s\n", cfg.Storage.DataDir)
	fmt.Printf("Log:        %s (%s)\n", cfg.Logging.File, cfg.Logging.Level)
	return nil
}

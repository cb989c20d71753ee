package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadforge/leadforge/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadforge",
	Short: "Selector-driven lead extraction and CRM sync pipeline",
	Long:  "Scrapes configured listing sites, deduplicates extracted contacts into a lead store, and pushes them to the CRM with retry-safe idempotent sync.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MichaelHCSilva/Binario-Faturas/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "faturas",
	Short: "Telecom invoice harvesting and extraction",
	Long:  "Walks operator portals account by account, downloads every pending invoice idempotently, extracts structured fields from the PDFs, and persists deduplicated records.",
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

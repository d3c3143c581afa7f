package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caretext/arena-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "arena",
	Short: "Pairwise comparison survey for extraction method outputs",
	Long:  "Serves blinded side-by-side comparisons of extraction method outputs to clinical experts and records their tournament-style preference votes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A local .env is a convenience for development; absence is fine.
		_ = godotenv.Load()

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

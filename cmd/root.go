package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "report-kpi",
	Short: "Quarterly report KPI extraction",
	Long:  "Discovers and downloads listed companies' financial reports, extracts their text, asks a language model for the key figures and reconciles them per company and quarter.",
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

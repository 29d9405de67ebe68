package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/outbid/outbid/internal/audit"
	"github.com/outbid/outbid/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse discovered postings interactively (TUI)",
	Long:  "Launches the split-pane audit view over the posting cache and alert ledger.",
	RunE:  runAuditCmd,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	return audit.Run(sqlStore)
}

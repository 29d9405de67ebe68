package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/outbid/outbid/internal/alert"
	"github.com/outbid/outbid/internal/dispatch"
	"github.com/outbid/outbid/internal/entitlement"
	"github.com/outbid/outbid/internal/extract"
	"github.com/outbid/outbid/internal/notifier"
	"github.com/outbid/outbid/internal/scanner"
	"github.com/outbid/outbid/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle, print alerts, exit",
	Long:  "One-shot scan: fetches the search page, prints what each subscriber would receive, exits. Messages go to the log and the seen set is untouched.",
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("scan mode: nothing will be marked as seen or delivered")

	// Subscribers and draft counters still come from the real store; only the
	// seen set, posting cache, and delivery are diverted.
	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	messenger := notifier.NewLogMessenger(logger)

	gate := entitlement.NewGate(cfg.Entitlement.AdminIDs, cfg.Entitlement.Unrestricted, sqlStore, logger)
	pool := buildPool(cfg, sqlStore, httpClient, logger)
	pipeline := alert.NewPipeline(sqlStore, gate, pool, sqlStore, sqlStore, nil, logger)
	nopStore := store.NewNopStore()
	batcher := dispatch.NewBatcher(messenger, nopStore, cfg.Delivery.BatchSize, cfg.Delivery.BatchDelay, logger)

	fetcher := buildFetcher(cfg, httpClient, logger)
	extractor := extract.New(cfg.Scan.BaseURL, logger)
	scan := scanner.New(cfg.Scan.SearchURL, fetcher, extractor, nopStore, pipeline, batcher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scan.Scan(ctx); err != nil {
		logger.Error("scan failed", "error", err)
		os.Exit(1)
	}

	logger.Info("scan complete")
	return nil
}

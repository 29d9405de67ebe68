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
	"github.com/outbid/outbid/internal/model"
	"github.com/outbid/outbid/internal/nudge"
	"github.com/outbid/outbid/internal/scanner"
	"github.com/outbid/outbid/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scan daemon",
	Long:  "Start the scan loop; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"search_url", cfg.Scan.SearchURL,
		"interval", cfg.Scan.Interval.String(),
		"delivery", cfg.Delivery.Type,
		"provider", cfg.Generation.Provider,
	)

	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	messenger := setupMessenger(cfg, httpClient, logger)

	nudges := nudge.NewScheduler(cfg.Nudge.Delay, func(subscriberID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := messenger.Send(ctx, subscriberID, alert.NudgeText()); err != nil {
			logger.Error("nudge delivery failed", "subscriber_id", subscriberID, "error", err)
		}
	}, logger)
	defer nudges.Stop()

	gate := entitlement.NewGate(cfg.Entitlement.AdminIDs, cfg.Entitlement.Unrestricted, sqlStore, logger)
	pool := buildPool(cfg, sqlStore, httpClient, logger)
	pipeline := alert.NewPipeline(sqlStore, gate, pool, sqlStore, sqlStore, nudges, logger)
	batcher := dispatch.NewBatcher(messenger, sqlStore, cfg.Delivery.BatchSize, cfg.Delivery.BatchDelay, logger)

	fetcher := buildFetcher(cfg, httpClient, logger)
	extractor := extract.New(cfg.Scan.BaseURL, logger)
	scan := scanner.New(cfg.Scan.SearchURL, fetcher, extractor, sqlStore, pipeline, batcher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	retention := time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour
	sched := scanner.NewScheduler(scan, cfg.Scan.Interval, cfg.Scan.RetryInterval, sqlStore, retention, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}

// interface checks for the store wiring above
var (
	_ model.SeenStore       = (*store.SQLiteStore)(nil)
	_ model.PostingStore    = (*store.SQLiteStore)(nil)
	_ model.SubscriberStore = (*store.SQLiteStore)(nil)
	_ model.DraftStore      = (*store.SQLiteStore)(nil)
	_ model.RevealStore     = (*store.SQLiteStore)(nil)
	_ model.LedgerStore     = (*store.SQLiteStore)(nil)
)

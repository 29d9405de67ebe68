package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/outbid/outbid/internal/dispatch"
	"github.com/outbid/outbid/internal/model"
	"github.com/outbid/outbid/internal/store"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Delivery subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test [subscriber-id]",
	Short: "Send a test message",
	Long:  "Sends a test message to the given subscriber using the configured delivery channel.",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotifyTest,
}

var notifyAnnounceCmd = &cobra.Command{
	Use:   "announce [text]",
	Short: "Broadcast a message to every subscriber",
	Long:  "Sends the given text to all subscribers through the batcher, respecting the delivery rate limits.",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotifyAnnounce,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
	notifyCmd.AddCommand(notifyAnnounceCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	subscriberID, err := parseSubscriberID(args[0])
	if err != nil {
		logger.Error("invalid subscriber id", "arg", args[0], "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	messenger := setupMessenger(cfg, httpClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := messenger.Send(ctx, subscriberID, "Outbid delivery test: you are hooked up."); err != nil {
		logger.Error("test message failed", "error", err)
		os.Exit(1)
	}
	logger.Info("test message sent successfully", "subscriber_id", subscriberID)
	return nil
}

func runNotifyAnnounce(cmd *cobra.Command, args []string) error {
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

	subs, err := sqlStore.Subscribers()
	if err != nil {
		logger.Error("failed to load subscribers", "error", err)
		os.Exit(1)
	}
	if len(subs) == 0 {
		logger.Info("no subscribers to announce to")
		return nil
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	messenger := setupMessenger(cfg, httpClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Announcements are not job alerts, so they skip the ledger.
	batcher := dispatch.NewBatcher(messenger, store.NewNopStore(), cfg.Delivery.BatchSize, cfg.Delivery.BatchDelay, logger)

	messages := make([]dispatch.Prepared, 0, len(subs))
	for _, sub := range subs {
		messages = append(messages, dispatch.Prepared{
			SubscriberID: sub.ID,
			Kind:         model.AlertAnnouncement,
			Text:         args[0],
		})
	}

	stats, err := batcher.DispatchAll(ctx, messages)
	if err != nil {
		logger.Error("announce cancelled", "sent", stats.Sent, "failed", stats.Failed, "error", err)
		os.Exit(1)
	}
	logger.Info("announce complete", "sent", stats.Sent, "failed", stats.Failed, "blocked", stats.Blocked)
	return nil
}

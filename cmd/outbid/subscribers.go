package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/outbid/outbid/internal/store"
)

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "List all subscribers",
	Long:  "Reads the store and prints a table of all subscribers with their plan and credit state.",
	RunE:  runSubscribers,
}

func init() {
	rootCmd.AddCommand(subscribersCmd)
}

func parseSubscriberID(arg string) (int64, error) {
	return strconv.ParseInt(arg, 10, 64)
}

func runSubscribers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	subs, err := sqlStore.Subscribers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load subscribers: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-12s %-10s %-22s %-8s %s\n", "ID", "Plan", "Expiry", "Credits", "Status")
	fmt.Println(strings.Repeat("─", 64))

	now := time.Now()
	active, paused := 0, 0
	for _, s := range subs {
		expiry := "-"
		if s.PlanExpiry != nil {
			expiry = s.PlanExpiry.Format("2006-01-02 15:04")
		}
		status := "active"
		if s.Paused(now) {
			status = "paused"
			paused++
		} else {
			active++
		}
		fmt.Printf("%-12d %-10s %-22s %-8d %s\n", s.ID, s.Plan, expiry, s.RevealCredits, status)
	}

	fmt.Printf("\nTotal: %d subscribers (%d active, %d paused)\n", len(subs), active, paused)
	return nil
}

package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/outbid/outbid/internal/config"
	"github.com/outbid/outbid/internal/fetch"
	"github.com/outbid/outbid/internal/generate"
	"github.com/outbid/outbid/internal/model"
	"github.com/outbid/outbid/internal/notifier"
	"github.com/outbid/outbid/internal/ratelimit"
	"github.com/outbid/outbid/internal/retry"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "outbid",
	Short: "Job alert pipeline — see it first, bid it first",
	Long:  "Outbid scans a freelance job board, matches postings to subscribers, and delivers alerts with ready-to-send proposals.",
	// Default to `start` so that `outbid` with no args runs the daemon.
	// This preserves compatibility with systemd unit files that invoke the binary directly.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: OUTBID_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > OUTBID_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("OUTBID_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupMessenger(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Messenger {
	switch cfg.Delivery.Type {
	case "telegram":
		logger.Info("using telegram delivery")
		telegram := notifier.NewTelegramMessenger(cfg.Delivery.Token, httpClient, logger)
		limiter := ratelimit.NewRecipientLimiter(cfg.Delivery.MinSendGap)
		return ratelimit.NewRateLimitedMessenger(telegram, limiter)
	case "slack":
		logger.Info("using slack delivery")
		return notifier.NewSlackMessenger(cfg.Delivery.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogMessenger(logger)
	}
}

func buildProvider(provider, baseURL, apiKey, modelName string, httpClient *http.Client) generate.Provider {
	switch provider {
	case "anthropic":
		return generate.NewAnthropicProvider(baseURL, apiKey, modelName, httpClient)
	default:
		return generate.NewOpenAIProvider(baseURL, apiKey, modelName, httpClient)
	}
}

func buildPool(cfg *config.Config, drafts model.DraftStore, httpClient *http.Client, logger *slog.Logger) *generate.Pool {
	gen := cfg.Generation
	primary := buildProvider(gen.Provider, gen.BaseURL, gen.APIKey, gen.Model, httpClient)
	primary = retry.NewRetryProvider(primary, gen.MaxRetries, gen.RetryDelay, logger)

	var fallback generate.Provider
	if gen.Fallback.Enabled {
		fallback = buildProvider(gen.Fallback.Provider, gen.Fallback.BaseURL, gen.Fallback.APIKey, gen.Fallback.Model, httpClient)
		fallback = retry.NewRetryProvider(fallback, gen.MaxRetries, gen.RetryDelay, logger)
		logger.Info("fallback provider configured", "provider", fallback.Name())
	}

	return generate.NewPool(primary, drafts, generate.PoolOptions{
		Fallback:          fallback,
		MaxTokens:         gen.MaxTokens,
		Concurrency:       gen.Concurrency,
		MaxDrafts:         gen.MaxDrafts,
		MaxStrategyDrafts: gen.MaxStrategyDrafts,
		Timeout:           gen.Timeout,
	}, logger)
}

func buildFetcher(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *fetch.Fetcher {
	fc := cfg.Fetch

	var strategies []fetch.Strategy
	if fc.Solver.Enabled {
		strategies = append(strategies, fetch.NewSolver(fc.Solver.BaseURL, fc.Solver.APIKey, fc.Solver.PollInterval, httpClient))
		logger.Info("solver strategy enabled")
	}
	if fc.Bypass.Enabled {
		strategies = append(strategies, fetch.NewBypassPool(fc.Bypass.Endpoints, fc.Bypass.AttemptsPerEndpoint, httpClient))
		logger.Info("bypass pool enabled", "endpoints", len(fc.Bypass.Endpoints))
	}
	if fc.Unlocker.Enabled {
		strategies = append(strategies, fetch.NewUnlocker(fc.Unlocker.BaseURL, fc.Unlocker.APIKey, fc.Unlocker.Zone, httpClient))
		logger.Info("unlocker strategy enabled", "zone", fc.Unlocker.Zone)
	}

	recycler := fetch.NewHTTPRecycler(httpClient, 30*time.Second)
	health := fetch.NewHealthTracker(fc.RecycleThreshold, recycler, logger)
	return fetch.NewFetcher(strategies, health, cfg.Scan.AttemptTimeout, cfg.Scan.RetryDelay, logger)
}

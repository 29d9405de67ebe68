package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the Outbid pipeline.
type Config struct {
	Scan        ScanConfig
	Fetch       FetchConfig
	Store       StoreConfig
	Delivery    DeliveryConfig
	Generation  GenerationConfig
	Entitlement EntitlementConfig
	Nudge       NudgeConfig
}

// ScanConfig controls the periodic scan loop.
type ScanConfig struct {
	SearchURL      string        // job board search page to fetch each cycle
	BaseURL        string        // prefix for relative posting links
	Interval       time.Duration // gap between scan cycle starts
	RetryInterval  time.Duration // wait after a failed cycle
	AttemptTimeout time.Duration // per fetch attempt
	RetryDelay     time.Duration // pause between fetch attempts
}

// FetchConfig selects and tunes the fetch strategies, tried in order:
// solver, bypass pool, unlocker.
type FetchConfig struct {
	Solver           SolverConfig
	Bypass           BypassConfig
	Unlocker         UnlockerConfig
	RecycleThreshold int // consecutive failures before an endpoint is recycled
}

// SolverConfig configures the challenge-solving service.
type SolverConfig struct {
	Enabled      bool
	BaseURL      string
	APIKey       string
	PollInterval time.Duration // gap between task status polls
}

// BypassConfig configures the round-robin pool of bypass servers.
type BypassConfig struct {
	Enabled             bool
	Endpoints           []string
	AttemptsPerEndpoint int
}

// UnlockerConfig configures the hosted unlocker proxy.
type UnlockerConfig struct {
	Enabled bool
	BaseURL string
	APIKey  string
	Zone    string
}

// StoreConfig controls the SQLite store.
type StoreConfig struct {
	Path          string
	RetentionDays int // seen entries older than this are purged after a successful cycle
}

// DeliveryConfig controls which messenger is used and how sends are batched.
type DeliveryConfig struct {
	Type       string // "log", "telegram", or "slack"
	Token      string // required if type is "telegram"
	WebhookURL string // required if type is "slack"
	BatchSize  int
	BatchDelay time.Duration
	MinSendGap time.Duration // minimum gap between sends to the same recipient
}

// GenerationConfig controls the proposal generation layer.
type GenerationConfig struct {
	Provider          string // "openai" or "anthropic"
	BaseURL           string
	APIKey            string
	Model             string
	Fallback          FallbackConfig
	MaxTokens         int
	Concurrency       int // simultaneous in-flight generations
	MaxDrafts         int // proposal rewrites per (subscriber, job)
	MaxStrategyDrafts int // strategy rewrites per (subscriber, job)
	MaxRetries        int // extra attempts after a transient provider failure
	RetryDelay        time.Duration
	Timeout           time.Duration
}

// FallbackConfig is the secondary provider tried when the primary fails.
type FallbackConfig struct {
	Enabled  bool
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// EntitlementConfig controls access classification.
type EntitlementConfig struct {
	AdminIDs     []int64
	Unrestricted bool // when true every subscriber is treated as entitled
}

// NudgeConfig controls the delayed upgrade reminder.
type NudgeConfig struct {
	Delay time.Duration
}

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Scan        rawScanConfig        `yaml:"scan"`
	Fetch       rawFetchConfig       `yaml:"fetch"`
	Store       rawStoreConfig       `yaml:"store"`
	Delivery    rawDeliveryConfig    `yaml:"delivery"`
	Generation  rawGenerationConfig  `yaml:"generation"`
	Entitlement rawEntitlementConfig `yaml:"entitlement"`
	Nudge       rawNudgeConfig       `yaml:"nudge"`
}

type rawScanConfig struct {
	SearchURL      string `yaml:"search_url"`
	BaseURL        string `yaml:"base_url"`
	Interval       string `yaml:"interval"`
	RetryInterval  string `yaml:"retry_interval"`
	AttemptTimeout string `yaml:"attempt_timeout"`
	RetryDelay     string `yaml:"retry_delay"`
}

type rawFetchConfig struct {
	Solver           rawSolverConfig `yaml:"solver"`
	Bypass           rawBypassConfig `yaml:"bypass"`
	Unlocker         UnlockerConfig  `yaml:"unlocker"`
	RecycleThreshold int             `yaml:"recycle_threshold"`
}

type rawSolverConfig struct {
	Enabled      bool   `yaml:"enabled"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	PollInterval string `yaml:"poll_interval"`
}

type rawBypassConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Endpoints           []string `yaml:"endpoints"`
	AttemptsPerEndpoint int      `yaml:"attempts_per_endpoint"`
}

type rawStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type rawDeliveryConfig struct {
	Type       string `yaml:"type"`
	Token      string `yaml:"token"`
	WebhookURL string `yaml:"webhook_url"`
	BatchSize  int    `yaml:"batch_size"`
	BatchDelay string `yaml:"batch_delay"`
	MinSendGap string `yaml:"min_send_gap"`
}

type rawGenerationConfig struct {
	Provider          string            `yaml:"provider"`
	BaseURL           string            `yaml:"base_url"`
	APIKey            string            `yaml:"api_key"`
	Model             string            `yaml:"model"`
	Fallback          rawFallbackConfig `yaml:"fallback"`
	MaxTokens         int               `yaml:"max_tokens"`
	Concurrency       int               `yaml:"concurrency"`
	MaxDrafts         int               `yaml:"max_drafts"`
	MaxStrategyDrafts int               `yaml:"max_strategy_drafts"`
	MaxRetries        int               `yaml:"max_retries"`
	RetryDelay        string            `yaml:"retry_delay"`
	Timeout           string            `yaml:"timeout"`
}

type rawFallbackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type rawEntitlementConfig struct {
	AdminIDs     []int64 `yaml:"admin_ids"`
	Unrestricted bool    `yaml:"unrestricted"`
}

type rawNudgeConfig struct {
	Delay string `yaml:"delay"`
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	interval, err := parseDuration("scan.interval", raw.Scan.Interval, 2*time.Minute)
	if err != nil {
		return nil, err
	}
	retryInterval, err := parseDuration("scan.retry_interval", raw.Scan.RetryInterval, interval)
	if err != nil {
		return nil, err
	}
	attemptTimeout, err := parseDuration("scan.attempt_timeout", raw.Scan.AttemptTimeout, 90*time.Second)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("scan.retry_delay", raw.Scan.RetryDelay, 3*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("fetch.solver.poll_interval", raw.Fetch.Solver.PollInterval, 2*time.Second)
	if err != nil {
		return nil, err
	}
	batchDelay, err := parseDuration("delivery.batch_delay", raw.Delivery.BatchDelay, time.Second)
	if err != nil {
		return nil, err
	}
	minSendGap, err := parseDuration("delivery.min_send_gap", raw.Delivery.MinSendGap, time.Second)
	if err != nil {
		return nil, err
	}
	genRetryDelay, err := parseDuration("generation.retry_delay", raw.Generation.RetryDelay, 2*time.Second)
	if err != nil {
		return nil, err
	}
	genTimeout, err := parseDuration("generation.timeout", raw.Generation.Timeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	nudgeDelay, err := parseDuration("nudge.delay", raw.Nudge.Delay, 6*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Scan: ScanConfig{
			SearchURL:      raw.Scan.SearchURL,
			BaseURL:        raw.Scan.BaseURL,
			Interval:       interval,
			RetryInterval:  retryInterval,
			AttemptTimeout: attemptTimeout,
			RetryDelay:     retryDelay,
		},
		Fetch: FetchConfig{
			Solver: SolverConfig{
				Enabled:      raw.Fetch.Solver.Enabled,
				BaseURL:      raw.Fetch.Solver.BaseURL,
				APIKey:       raw.Fetch.Solver.APIKey,
				PollInterval: pollInterval,
			},
			Bypass: BypassConfig{
				Enabled:             raw.Fetch.Bypass.Enabled,
				Endpoints:           raw.Fetch.Bypass.Endpoints,
				AttemptsPerEndpoint: raw.Fetch.Bypass.AttemptsPerEndpoint,
			},
			Unlocker:         raw.Fetch.Unlocker,
			RecycleThreshold: raw.Fetch.RecycleThreshold,
		},
		Store: StoreConfig{
			Path:          raw.Store.Path,
			RetentionDays: raw.Store.RetentionDays,
		},
		Delivery: DeliveryConfig{
			Type:       raw.Delivery.Type,
			Token:      raw.Delivery.Token,
			WebhookURL: raw.Delivery.WebhookURL,
			BatchSize:  raw.Delivery.BatchSize,
			BatchDelay: batchDelay,
			MinSendGap: minSendGap,
		},
		Generation: GenerationConfig{
			Provider:          raw.Generation.Provider,
			BaseURL:           raw.Generation.BaseURL,
			APIKey:            raw.Generation.APIKey,
			Model:             raw.Generation.Model,
			MaxTokens:         raw.Generation.MaxTokens,
			Concurrency:       raw.Generation.Concurrency,
			MaxDrafts:         raw.Generation.MaxDrafts,
			MaxStrategyDrafts: raw.Generation.MaxStrategyDrafts,
			MaxRetries:        raw.Generation.MaxRetries,
			RetryDelay:        genRetryDelay,
			Timeout:           genTimeout,
			Fallback: FallbackConfig{
				Enabled:  raw.Generation.Fallback.Enabled,
				Provider: raw.Generation.Fallback.Provider,
				BaseURL:  raw.Generation.Fallback.BaseURL,
				APIKey:   raw.Generation.Fallback.APIKey,
				Model:    raw.Generation.Fallback.Model,
			},
		},
		Entitlement: EntitlementConfig{
			AdminIDs:     raw.Entitlement.AdminIDs,
			Unrestricted: raw.Entitlement.Unrestricted,
		},
		Nudge: NudgeConfig{Delay: nudgeDelay},
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Fetch.Bypass.AttemptsPerEndpoint == 0 {
		cfg.Fetch.Bypass.AttemptsPerEndpoint = 3
	}
	if cfg.Fetch.RecycleThreshold == 0 {
		cfg.Fetch.RecycleThreshold = 2
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "outbid.db"
	}
	if cfg.Store.RetentionDays == 0 {
		cfg.Store.RetentionDays = 30
	}
	if cfg.Delivery.Type == "" {
		cfg.Delivery.Type = "log"
	}
	if cfg.Delivery.BatchSize == 0 {
		cfg.Delivery.BatchSize = 25
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1000
	}
	if cfg.Generation.Concurrency == 0 {
		cfg.Generation.Concurrency = 10
	}
	if cfg.Generation.MaxDrafts == 0 {
		cfg.Generation.MaxDrafts = 3
	}
	if cfg.Generation.MaxStrategyDrafts == 0 {
		cfg.Generation.MaxStrategyDrafts = 2
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 2
	}
	if cfg.Generation.BaseURL == "" {
		switch cfg.Generation.Provider {
		case "anthropic":
			cfg.Generation.BaseURL = defaultAnthropicBaseURL
		default:
			cfg.Generation.BaseURL = defaultOpenAIBaseURL
		}
	}
	if cfg.Generation.Fallback.Enabled && cfg.Generation.Fallback.BaseURL == "" {
		switch cfg.Generation.Fallback.Provider {
		case "anthropic":
			cfg.Generation.Fallback.BaseURL = defaultAnthropicBaseURL
		default:
			cfg.Generation.Fallback.BaseURL = defaultOpenAIBaseURL
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Scan.SearchURL == "" {
		return fmt.Errorf("scan.search_url is required")
	}
	if cfg.Scan.Interval <= 0 {
		return fmt.Errorf("scan.interval must be positive, got %v", cfg.Scan.Interval)
	}

	if !cfg.Fetch.Solver.Enabled && !cfg.Fetch.Bypass.Enabled && !cfg.Fetch.Unlocker.Enabled {
		return fmt.Errorf("at least one fetch strategy must be enabled")
	}
	if cfg.Fetch.Solver.Enabled {
		if cfg.Fetch.Solver.BaseURL == "" {
			return fmt.Errorf("fetch.solver.base_url is required when solver is enabled")
		}
		if cfg.Fetch.Solver.APIKey == "" {
			return fmt.Errorf("fetch.solver.api_key is required when solver is enabled")
		}
	}
	if cfg.Fetch.Bypass.Enabled && len(cfg.Fetch.Bypass.Endpoints) == 0 {
		return fmt.Errorf("fetch.bypass.endpoints must not be empty when bypass is enabled")
	}
	if cfg.Fetch.Unlocker.Enabled {
		if cfg.Fetch.Unlocker.APIKey == "" {
			return fmt.Errorf("fetch.unlocker.api_key is required when unlocker is enabled")
		}
		if cfg.Fetch.Unlocker.Zone == "" {
			return fmt.Errorf("fetch.unlocker.zone is required when unlocker is enabled")
		}
	}

	switch cfg.Delivery.Type {
	case "log":
	case "telegram":
		if cfg.Delivery.Token == "" {
			return fmt.Errorf("delivery.token is required when type is \"telegram\"")
		}
	case "slack":
		if cfg.Delivery.WebhookURL == "" {
			return fmt.Errorf("delivery.webhook_url is required when type is \"slack\"")
		}
	default:
		return fmt.Errorf("delivery.type must be \"log\", \"telegram\" or \"slack\", got %q", cfg.Delivery.Type)
	}

	if cfg.Generation.APIKey == "" {
		return fmt.Errorf("generation.api_key is required")
	}
	if cfg.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if cfg.Generation.Fallback.Enabled {
		if cfg.Generation.Fallback.APIKey == "" {
			return fmt.Errorf("generation.fallback.api_key is required when fallback is enabled")
		}
		if cfg.Generation.Fallback.Model == "" {
			return fmt.Errorf("generation.fallback.model is required when fallback is enabled")
		}
	}

	return nil
}

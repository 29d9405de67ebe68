package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
scan:
  search_url: "https://example.com/search"
fetch:
  bypass:
    enabled: true
    endpoints:
      - "http://localhost:8191"
generation:
  provider: openai
  api_key: "sk-test"
  model: "gpt-4o-mini"
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
scan:
  search_url: "https://example.com/search"
  base_url: "https://example.com"
  interval: 5m
  attempt_timeout: 30s
fetch:
  solver:
    enabled: true
    base_url: "http://localhost:8191/v1"
    api_key: "solver-key"
  bypass:
    enabled: true
    endpoints:
      - "http://localhost:3000"
      - "http://localhost:3001"
delivery:
  type: telegram
  token: "bot-token"
  batch_size: 10
  batch_delay: 500ms
generation:
  provider: anthropic
  api_key: "sk-test"
  model: "claude-3-5-haiku"
  concurrency: 4
nudge:
  delay: 2h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.Interval != 5*time.Minute {
		t.Errorf("Scan.Interval = %v, want 5m", cfg.Scan.Interval)
	}
	if cfg.Scan.AttemptTimeout != 30*time.Second {
		t.Errorf("Scan.AttemptTimeout = %v, want 30s", cfg.Scan.AttemptTimeout)
	}
	if len(cfg.Fetch.Bypass.Endpoints) != 2 {
		t.Errorf("Bypass.Endpoints = %v", cfg.Fetch.Bypass.Endpoints)
	}
	if cfg.Delivery.Type != "telegram" || cfg.Delivery.BatchSize != 10 {
		t.Errorf("Delivery = %+v", cfg.Delivery)
	}
	if cfg.Delivery.BatchDelay != 500*time.Millisecond {
		t.Errorf("Delivery.BatchDelay = %v, want 500ms", cfg.Delivery.BatchDelay)
	}
	if cfg.Generation.Concurrency != 4 {
		t.Errorf("Generation.Concurrency = %d, want 4", cfg.Generation.Concurrency)
	}
	if cfg.Generation.BaseURL != defaultAnthropicBaseURL {
		t.Errorf("Generation.BaseURL = %q", cfg.Generation.BaseURL)
	}
	if cfg.Nudge.Delay != 2*time.Hour {
		t.Errorf("Nudge.Delay = %v, want 2h", cfg.Nudge.Delay)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.Interval != 2*time.Minute {
		t.Errorf("Scan.Interval = %v, want 2m", cfg.Scan.Interval)
	}
	if cfg.Scan.RetryInterval != cfg.Scan.Interval {
		t.Errorf("Scan.RetryInterval = %v, want the scan interval", cfg.Scan.RetryInterval)
	}
	if cfg.Fetch.Bypass.AttemptsPerEndpoint != 3 {
		t.Errorf("AttemptsPerEndpoint = %d, want 3", cfg.Fetch.Bypass.AttemptsPerEndpoint)
	}
	if cfg.Fetch.RecycleThreshold != 2 {
		t.Errorf("RecycleThreshold = %d, want 2", cfg.Fetch.RecycleThreshold)
	}
	if cfg.Store.Path != "outbid.db" || cfg.Store.RetentionDays != 30 {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Delivery.Type != "log" || cfg.Delivery.BatchSize != 25 {
		t.Errorf("Delivery = %+v", cfg.Delivery)
	}
	if cfg.Generation.MaxDrafts != 3 || cfg.Generation.MaxStrategyDrafts != 2 {
		t.Errorf("draft caps = %d/%d, want 3/2", cfg.Generation.MaxDrafts, cfg.Generation.MaxStrategyDrafts)
	}
	if cfg.Generation.Concurrency != 10 {
		t.Errorf("Generation.Concurrency = %d, want 10", cfg.Generation.Concurrency)
	}
	if cfg.Generation.BaseURL != defaultOpenAIBaseURL {
		t.Errorf("Generation.BaseURL = %q", cfg.Generation.BaseURL)
	}
	if cfg.Nudge.Delay != 6*time.Hour {
		t.Errorf("Nudge.Delay = %v, want 6h", cfg.Nudge.Delay)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("OUTBID_TEST_KEY", "expanded-key")
	cfg, err := Load(writeConfig(t, `
scan:
  search_url: "https://example.com/search"
fetch:
  bypass:
    enabled: true
    endpoints:
      - "http://localhost:8191"
generation:
  api_key: "${OUTBID_TEST_KEY}"
  model: "gpt-4o-mini"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.APIKey != "expanded-key" {
		t.Errorf("Generation.APIKey = %q, want env-expanded value", cfg.Generation.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "scan: [broken"))
	if err == nil {
		t.Fatal("Load: expected error for invalid YAML")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
scan:
  search_url: "https://example.com/search"
  interval: "soon"
fetch:
  bypass:
    enabled: true
    endpoints:
      - "http://localhost:8191"
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`))
	if err == nil {
		t.Fatal("Load: expected error for unparsable duration")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "no search url",
			content: `
fetch:
  bypass:
    enabled: true
    endpoints: ["http://localhost:8191"]
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`,
		},
		{
			name: "no fetch strategy enabled",
			content: `
scan:
  search_url: "https://example.com/search"
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`,
		},
		{
			name: "solver without api key",
			content: `
scan:
  search_url: "https://example.com/search"
fetch:
  solver:
    enabled: true
    base_url: "http://localhost:8191/v1"
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`,
		},
		{
			name: "bypass without endpoints",
			content: `
scan:
  search_url: "https://example.com/search"
fetch:
  bypass:
    enabled: true
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`,
		},
		{
			name: "unlocker without zone",
			content: `
scan:
  search_url: "https://example.com/search"
fetch:
  unlocker:
    enabled: true
    api_key: "uk-test"
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`,
		},
		{
			name: "telegram without token",
			content: `
scan:
  search_url: "https://example.com/search"
fetch:
  bypass:
    enabled: true
    endpoints: ["http://localhost:8191"]
delivery:
  type: telegram
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`,
		},
		{
			name: "slack without webhook url",
			content: `
scan:
  search_url: "https://example.com/search"
fetch:
  bypass:
    enabled: true
    endpoints: ["http://localhost:8191"]
delivery:
  type: slack
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`,
		},
		{
			name: "unknown delivery type",
			content: `
scan:
  search_url: "https://example.com/search"
fetch:
  bypass:
    enabled: true
    endpoints: ["http://localhost:8191"]
delivery:
  type: carrier-pigeon
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`,
		},
		{
			name: "generation without model",
			content: `
scan:
  search_url: "https://example.com/search"
fetch:
  bypass:
    enabled: true
    endpoints: ["http://localhost:8191"]
generation:
  api_key: "sk-test"
`,
		},
		{
			name: "fallback without api key",
			content: `
scan:
  search_url: "https://example.com/search"
fetch:
  bypass:
    enabled: true
    endpoints: ["http://localhost:8191"]
generation:
  api_key: "sk-test"
  model: "gpt-4o-mini"
  fallback:
    enabled: true
    model: "claude-3-5-haiku"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Fatal("Load: expected validation error")
			}
		})
	}
}

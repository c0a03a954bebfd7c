package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "mtfchart/pkg/broker/mt5bridge"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const brokerYAML = `
default: bridge
providers:
  bridge:
    type: mt5bridge
    base_url: ${MT5_BRIDGE_URL}
    timeout: ${MT5_BRIDGE_TIMEOUT}
instruments:
  EURUSD:
    min_stop_distance: 0.0005
    price_step: 0.00001
`

// TestLoad_hydratesBrokerSection verifies that the broker section is loaded
// relative to the main file with environment placeholders expanded.
func TestLoad_hydratesBrokerSection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broker.yaml", brokerYAML)
	mainPath := writeFile(t, dir, "chartd.yaml", `
Name: chartd
Host: 127.0.0.1
Port: 0
Symbol: ${CHART_SYMBOL}
Broker:
  File: broker.yaml
Chart:
  InitialFrames: ["5m", "1h"]
  RefreshInterval: 20s
`)

	t.Setenv("MT5_BRIDGE_URL", "http://bridge.local:8001/")
	t.Setenv("MT5_BRIDGE_TIMEOUT", "4s")
	t.Setenv("CHART_SYMBOL", "GBPUSD")

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Symbol != "GBPUSD" {
		t.Fatalf("Symbol not expanded, got %q", cfg.Symbol)
	}
	if cfg.Env != "test" || !cfg.IsTestEnv() {
		t.Fatalf("Env default not applied, got %q", cfg.Env)
	}
	if cfg.BaseDir() != dir {
		t.Fatalf("BaseDir = %q, want %q", cfg.BaseDir(), dir)
	}

	b := cfg.Broker.Value
	if b == nil {
		t.Fatalf("Broker section not hydrated")
	}
	if got := cfg.Broker.File; got != filepath.Join(dir, "broker.yaml") {
		t.Fatalf("Broker.File not resolved, got %q", got)
	}
	p := b.Providers["bridge"]
	if p == nil {
		t.Fatalf("provider 'bridge' missing")
	}
	if p.BaseURL != "http://bridge.local:8001" {
		t.Fatalf("BaseURL not expanded, got %q", p.BaseURL)
	}
	if p.Timeout != 4*time.Second {
		t.Fatalf("Timeout not parsed, got %s", p.Timeout)
	}
	if got := b.Instruments["EURUSD"].PriceStep; got != 0.00001 {
		t.Fatalf("instrument price step got %v", got)
	}

	ch := cfg.Chart
	if ch.MaxFrames != 5 || ch.Width != 960 || ch.HitTolerancePx != 6 || ch.DragThresholdPx != 2 {
		t.Fatalf("chart defaults not applied: %+v", ch)
	}
	if ch.RefreshInterval != 20*time.Second || ch.RefreshJitter != 750*time.Millisecond {
		t.Fatalf("chart refresh got interval=%s jitter=%s", ch.RefreshInterval, ch.RefreshJitter)
	}
	if strings.Join(ch.InitialFrames, ",") != "5m,1h" {
		t.Fatalf("InitialFrames got %v", ch.InitialFrames)
	}
	if cfg.Feed.BookInterval != 5*time.Second || !cfg.Feed.Stream {
		t.Fatalf("feed defaults not applied: %+v", cfg.Feed)
	}
}

func TestLoad_brokerSectionErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broker.yaml", `
providers:
  bridge:
    type: fix44
    base_url: http://127.0.0.1:8001
`)
	mainPath := writeFile(t, dir, "chartd.yaml", "Name: chartd\nHost: 127.0.0.1\nPort: 0\nBroker:\n  File: broker.yaml\n")
	if _, err := Load(mainPath); err == nil || !strings.Contains(err.Error(), "unsupported type") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
}

func TestValidate_env(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "staging"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected env error")
	}
	cfg.Env = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Env != "test" {
		t.Fatalf("empty env should default to test, got %q", cfg.Env)
	}
}

func TestValidate_ttl(t *testing.T) {
	cfg := validConfig()
	cfg.TTL.History = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "ttl.history") {
		t.Fatalf("expected ttl.history error, got %v", err)
	}
}

func TestValidate_chartBounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ChartConf)
		want   string
	}{
		{"too many frames", func(c *ChartConf) { c.MaxFrames = 9 }, "maxFrames"},
		{"no frames", func(c *ChartConf) { c.MaxFrames = 0 }, "maxFrames"},
		{"zero interval", func(c *ChartConf) { c.RefreshInterval = 0 }, "refreshInterval"},
		{"jitter above interval", func(c *ChartConf) { c.RefreshJitter = c.RefreshInterval }, "refreshJitter"},
		{"dedup band", func(c *ChartConf) { c.DedupBandPct = 1 }, "dedupBandPct"},
		{"negative tolerance", func(c *ChartConf) { c.HitTolerancePx = -1 }, "pixel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg.Chart)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %s error, got %v", tc.want, err)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Env: "dev",
		TTL: CacheTTL{History: 300},
		Chart: ChartConf{
			MaxFrames:       5,
			RefreshInterval: 15 * time.Second,
			RefreshJitter:   750 * time.Millisecond,
			HitTolerancePx:  6,
			DragThresholdPx: 2,
			DedupBandPct:    0.003,
		},
		Feed: FeedConf{BookInterval: 5 * time.Second, ApplyTimeout: 10 * time.Second},
	}
}

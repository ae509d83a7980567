package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
environment: test
analytics:
  symbol_a: btcusdt
  symbol_b: ethusdt
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	a := c.Analytics
	if a.WindowSize != 20 || a.AlertThreshold != 2.0 || a.Interval != "1m" || a.MinRegressionSamples != 10 {
		t.Fatalf("unexpected analytics defaults %+v", a)
	}
	if a.CyclePeriod != 500*time.Millisecond || !a.UseBars || a.TickBuffer.MaxCount != 10000 {
		t.Fatalf("unexpected cycle/buffer defaults %+v", a)
	}
	if c.Storage.Backend != "none" || c.Ingestion.Source != "binance" || c.Server.Port != 8080 {
		t.Fatalf("unexpected section defaults")
	}
	if a.Pair() != "btcusdt/ethusdt" {
		t.Fatalf("pair %q", a.Pair())
	}
}

func TestExplicitFalseSurvivesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal + "  use_bars: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Analytics.UseBars {
		t.Fatalf("use_bars=false was overwritten by default")
	}
}

func TestValidateRejectsBadAnalytics(t *testing.T) {
	cases := map[string]string{
		"window":    "  window_size: 1\n",
		"threshold": "  alert_threshold: -1\n",
		"interval":  "  interval: 3m\n",
		"minsample": "  min_regression_samples: 1\n",
	}
	for name, extra := range cases {
		_, err := Parse([]byte(minimal + extra))
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestValidateSameSymbols(t *testing.T) {
	_, err := Parse([]byte("analytics:\n  symbol_a: x\n  symbol_b: x\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for identical legs, got %v", err)
	}
}

func TestValidateCrossSection(t *testing.T) {
	_, err := Parse([]byte(minimal + "ingestion:\n  source: kafka\n"))
	if err == nil || !strings.Contains(err.Error(), "kafka.enabled") {
		t.Fatalf("expected kafka requirement error, got %v", err)
	}
	_, err = Parse([]byte(minimal + "  window_size: 50\n  tick_buffer:\n    max_count: 10\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected buffer/window error, got %v", err)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PAIRPULSE_SYMBOL_B", "solusdt")
	t.Setenv("PAIRPULSE_WINDOW_SIZE", "30")
	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Analytics.SymbolB != "solusdt" || c.Analytics.WindowSize != 30 {
		t.Fatalf("env overrides not applied: %+v", c.Analytics)
	}

	t.Setenv("PAIRPULSE_WINDOW_SIZE", "abc")
	if _, err := LoadWithEnv(path); err == nil {
		t.Fatalf("expected error for bad PAIRPULSE_WINDOW_SIZE")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

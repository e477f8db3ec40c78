package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-worker")
	cfg := Load()
	if cfg.MetricsPort != "9097" || cfg.HTTPPort != "" {
		t.Errorf("ports = %q/%q", cfg.HTTPPort, cfg.MetricsPort)
	}
	if cfg.SessionIdle != 10*time.Minute || cfg.TopicLegOutcomes != "wager_leg_outcomes" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "wager-service")
	t.Setenv("RATE_WAGER_MAX", "5")
	t.Setenv("RATE_WAGER_WINDOW", "60s")
	t.Setenv("STORE_TIMEOUT", "not-a-duration")
	t.Setenv("STORE_DRIVER", "memory")

	cfg := Load()
	if cfg.RateWagerMax != 5 || cfg.RateWagerWindow != time.Minute {
		t.Errorf("rate = %d/%s", cfg.RateWagerMax, cfg.RateWagerWindow)
	}
	if cfg.StoreTimeout != 5*time.Second {
		t.Errorf("invalid duration should fall back, got %s", cfg.StoreTimeout)
	}
	if cfg.StoreDriver != "memory" || cfg.HTTPPort != "8080" {
		t.Errorf("cfg = %+v", cfg)
	}
}

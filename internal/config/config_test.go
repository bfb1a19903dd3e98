package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_PATH", "SWEEP_INTERVAL", "SWEEP_GRACE", "BREAKER_THRESHOLD",
		"BREAKER_COOLDOWN", "MPESA_HTTP_TIMEOUT", "TOKEN_EXPIRY_MARGIN", "DEFAULT_ACCOUNT_PRIORITY"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "settlement.db" {
		t.Fatalf("port=%s db=%s", cfg.Port, cfg.DBPath)
	}
	if cfg.SweepInterval != 0 || cfg.SweepGrace != 2*time.Minute {
		t.Fatalf("sweep interval=%s grace=%s", cfg.SweepInterval, cfg.SweepGrace)
	}
	if cfg.MPesa.BreakerThreshold != 5 || cfg.MPesa.BreakerCooldown != 5*time.Minute {
		t.Fatalf("breaker = %d/%s", cfg.MPesa.BreakerThreshold, cfg.MPesa.BreakerCooldown)
	}
	if cfg.MPesa.HTTPTimeout != 30*time.Second || cfg.MPesa.TokenExpiryMargin != time.Minute {
		t.Fatalf("timeouts = %s/%s", cfg.MPesa.HTTPTimeout, cfg.MPesa.TokenExpiryMargin)
	}
	if !reflect.DeepEqual(cfg.DefaultAccountPriority, []string{"SAVINGS", "ALPHA"}) {
		t.Fatalf("priority = %v", cfg.DefaultAccountPriority)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("BREAKER_THRESHOLD", "3")
	t.Setenv("DEFAULT_ACCOUNT_PRIORITY", " beta, savings ,")
	t.Setenv("MPESA_SHORTCODE", "600000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.SweepInterval != 30*time.Second || cfg.MPesa.BreakerThreshold != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MPesa.ShortCode != "600000" {
		t.Fatalf("shortcode = %s", cfg.MPesa.ShortCode)
	}
	if !reflect.DeepEqual(cfg.DefaultAccountPriority, []string{"BETA", "SAVINGS"}) {
		t.Fatalf("priority = %v", cfg.DefaultAccountPriority)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SWEEP_GRACE", "two minutes"},
		{"BREAKER_THRESHOLD", "five"},
		{"BREAKER_THRESHOLD", "0"},
		{"MPESA_HTTP_TIMEOUT", "30"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

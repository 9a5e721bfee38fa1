package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadResolvesDefaults(t *testing.T) {
	path := writeConfig(t, `
broker:
  api_key: key
  api_secret: secret
auth:
  timezone: UTC
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Broker.Name != "sim" {
		t.Fatalf("broker name: got %s want sim", cfg.Broker.Name)
	}
	if cfg.Probe.Interval != 5*time.Minute || cfg.Probe.FailureThreshold != 3 {
		t.Fatalf("probe defaults: got %+v", cfg.Probe)
	}
	if cfg.Expiry.CheckInterval != time.Minute {
		t.Fatalf("expiry check interval: got %s", cfg.Expiry.CheckInterval)
	}
	if cfg.Expiry.WarningWindow != 30*time.Minute || cfg.Expiry.ActionWindow != 5*time.Minute {
		t.Fatalf("expiry windows: got %+v", cfg.Expiry)
	}
	if cfg.Reconcile.Interval != 5*time.Minute || cfg.Reconcile.DriftTolerance != 0.02 {
		t.Fatalf("reconcile defaults: got %+v", cfg.Reconcile)
	}
	if !cfg.Auth.AutoLogin {
		t.Fatal("auto login should default to true")
	}
	if cfg.Auth.ExpiryHour != 6 || cfg.Auth.ExpiryMinute != 0 {
		t.Fatalf("expiry clock: got %02d:%02d", cfg.Auth.ExpiryHour, cfg.Auth.ExpiryMinute)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Fatalf("metrics addr: got %s", cfg.Metrics.Addr)
	}
	if cfg.Bus.QueueSize != 256 {
		t.Fatalf("queue size: got %d", cfg.Bus.QueueSize)
	}
	if !cfg.Risk.DailyLossLimit.IsZero() {
		t.Fatalf("loss limit should default to disarmed, got %s", cfg.Risk.DailyLossLimit)
	}
}

func TestLoadResolvesLossLimit(t *testing.T) {
	path := writeConfig(t, `
risk:
  daily_loss_limit: 25000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Risk.DailyLossLimit.InexactFloat64() != 25000 {
		t.Fatalf("loss limit: got %s want 25000", cfg.Risk.DailyLossLimit)
	}
}

func TestLoadRejectsActionWiderThanWarning(t *testing.T) {
	path := writeConfig(t, `
expiry:
  warning_window: 5m
  action_window: 30m
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for action_window > warning_window")
	}
}

func TestLoadRejectsBadClock(t *testing.T) {
	path := writeConfig(t, `
auth:
  expiry_at: "25:99"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for out-of-range clock")
	}
}

func TestLoadRejectsHalfOpenMarketWindow(t *testing.T) {
	path := writeConfig(t, `
reconcile:
  market_open: "09:15"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for market_open without market_close")
	}
}

func TestNextExpiryDailyInstant(t *testing.T) {
	auth := AuthSpec{ExpiryHour: 6, ExpiryMinute: 0, Location: time.UTC}

	before := time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC)
	got := auth.NextExpiry(before)
	want := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("before instant: got %s want %s", got, want)
	}

	at := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	got = auth.NextExpiry(at)
	want = time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("at instant: got %s want %s", got, want)
	}

	after := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	got = auth.NextExpiry(after)
	if !got.Equal(want) {
		t.Fatalf("after instant: got %s want %s", got, want)
	}
}

func TestWithinMarketHours(t *testing.T) {
	spec := ReconcileSpec{
		OpenHour: 9, OpenMinute: 15,
		CloseHour: 15, CloseMinute: 30,
		Location: time.UTC,
	}

	// 2025-03-10 is a Monday.
	if !spec.WithinMarketHours(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatal("mid-session should be within hours")
	}
	if spec.WithinMarketHours(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatal("pre-open should be outside hours")
	}
	if spec.WithinMarketHours(time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)) {
		t.Fatal("close instant should be outside hours")
	}
	if spec.WithinMarketHours(time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC)) {
		t.Fatal("Saturday should be outside hours")
	}

	open := ReconcileSpec{Location: time.UTC}
	if !open.WithinMarketHours(time.Date(2025, 3, 8, 3, 0, 0, 0, time.UTC)) {
		t.Fatal("unset window should always be eligible")
	}
}

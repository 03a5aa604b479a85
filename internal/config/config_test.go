package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
dry_run: true
bankroll:
  total_usd: 10000
market_making:
  order_size_usd: 25
  refresh_interval: 5s
  stale_book_timeout: 30s
kelly:
  safety_factor: 0.5
  min_fraction: 0.0
  max_fraction: 0.25
risk:
  max_position_size: 500
  max_total_exposure: 5000
  max_positions: 20
  circuit_breaker_cooldown: 1h
pipeline:
  ingress_queue_size: 65536
calibration:
  bucket_count: 10
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DryRun {
		t.Error("expected dry_run=true")
	}
	if cfg.Bankroll.TotalUSD != 10000 {
		t.Errorf("bankroll.total_usd = %v, want 10000", cfg.Bankroll.TotalUSD)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejectsMissingBankroll(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
market_making:
  order_size_usd: 25
kelly:
  safety_factor: 0.5
  max_fraction: 0.25
risk:
  max_position_size: 500
  max_total_exposure: 5000
  max_positions: 20
  circuit_breaker_cooldown: 1h
pipeline:
  ingress_queue_size: 1024
calibration:
  bucket_count: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing bankroll.total_usd")
	}
}

func TestEnvOverrideDryRun(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	t.Setenv("CORE_DRY_RUN", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DryRun {
		t.Error("expected CORE_DRY_RUN=1 to force dry_run true")
	}
}

package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rewardengine/internal/config"
)

// ============================================================================
// Load
// ============================================================================

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" || cfg.MetricsAddr != ":9091" {
		t.Errorf("addrs: got %s %s %s", cfg.HTTPAddr, cfg.GRPCAddr, cfg.MetricsAddr)
	}
	if cfg.PersistFlushTimeout != 10*time.Millisecond {
		t.Errorf("flush timeout: got %s, want 10ms", cfg.PersistFlushTimeout)
	}
	if cfg.SnapshotSchedule != "@every 10m" {
		t.Errorf("snapshot schedule: got %q", cfg.SnapshotSchedule)
	}
	if len(cfg.Rewards) != 2 || cfg.Rewards[0].Version != "v1" || cfg.Rewards[1].Version != "v2" {
		t.Fatalf("rewards: got %+v", cfg.Rewards)
	}
	if cfg.Rewards[0].Fee != "public" || cfg.Rewards[1].Fee != "" {
		t.Errorf("fees: got %q and %q", cfg.Rewards[0].Fee, cfg.Rewards[1].Fee)
	}
	if !cfg.Staking.Enabled || cfg.Staking.Curve != "liquidity-mining" {
		t.Errorf("staking: got %+v", cfg.Staking)
	}
	if !cfg.Vesting.Enabled || cfg.Vesting.Preset != "v1" {
		t.Errorf("vesting: got %+v", cfg.Vesting)
	}

	collector, err := cfg.FeeCollectorID()
	if err != nil || collector != nil {
		t.Errorf("fee collector: got %v, %v; want burn", collector, err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("REWARD_HTTP_ADDR", ":7000")
	t.Setenv("REWARD_PERSIST_BATCH_SIZE", "200")
	t.Setenv("REWARD_VESTING_PRESET", "v2")
	t.Setenv("REWARD_FEE_COLLECTOR", "550e8400-e29b-41d4-a716-446655440000")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Errorf("http addr: got %s, want :7000", cfg.HTTPAddr)
	}
	if cfg.PersistBatchSize != 200 {
		t.Errorf("batch size: got %d, want 200", cfg.PersistBatchSize)
	}
	if cfg.Vesting.Preset != "v2" {
		t.Errorf("vesting preset: got %s, want v2", cfg.Vesting.Preset)
	}
	collector, err := cfg.FeeCollectorID()
	if err != nil || collector == nil || collector.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("fee collector: got %v, %v", collector, err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewardengine.yaml")
	body := `
http_addr: ":8181"
snapshot_schedule: "0 * * * *"
rewards:
  - version: v1
    curve: v1
    fee: public
    pools:
      - id: stable
        converter: identity
  - version: v3
    curve: flat
    start_unit: 500
    pools:
      - id: eth
        converter: price
staking:
  enabled: false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8181" || cfg.SnapshotSchedule != "0 * * * *" {
		t.Errorf("got %s %q", cfg.HTTPAddr, cfg.SnapshotSchedule)
	}
	if len(cfg.Rewards) != 2 {
		t.Fatalf("got %d reward versions, want 2", len(cfg.Rewards))
	}
	v3 := cfg.Rewards[1]
	if v3.Version != "v3" || v3.Curve != "flat" || v3.StartUnit != 500 {
		t.Errorf("got %+v", v3)
	}
	if len(v3.Pools) != 1 || v3.Pools[0].ID != "eth" || v3.Pools[0].Converter != "price" {
		t.Errorf("pools: got %+v", v3.Pools)
	}
	if cfg.Staking.Enabled {
		t.Errorf("staking should be disabled by the file")
	}
	if cfg.Staking.Name != "staking" {
		t.Errorf("staking name should keep its default, got %q", cfg.Staking.Name)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Rewards) != 2 {
		t.Errorf("got %d reward versions, want defaults", len(cfg.Rewards))
	}
}

// ============================================================================
// Validate
// ============================================================================

func validConfig() config.Config {
	return config.Config{
		Rewards: config.DefaultRewards(),
		Vesting: config.VestingConfig{Enabled: true, Preset: "v1"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"no versions", func(c *config.Config) { c.Rewards = nil }, "at least one reward version"},
		{"duplicate version", func(c *config.Config) { c.Rewards[1].Version = "v1" }, "configured twice"},
		{"missing curve", func(c *config.Config) { c.Rewards[0].Curve = "" }, "curve are required"},
		{"no pools", func(c *config.Config) { c.Rewards[1].Pools = nil }, "has no pools"},
		{"unknown fee", func(c *config.Config) { c.Rewards[0].Fee = "private" }, "unknown fee schedule"},
		{"unknown vesting preset", func(c *config.Config) { c.Vesting.Preset = "v9" }, "unknown vesting preset"},
		{"disabled vesting ignores preset", func(c *config.Config) { c.Vesting = config.VestingConfig{Preset: "v9"} }, ""},
		{"bad fee collector", func(c *config.Config) { c.FeeCollector = "treasury" }, "fee collector must be a uuid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFeeCollectorID_WrapsSentinel(t *testing.T) {
	cfg := validConfig()
	cfg.FeeCollector = "not-a-uuid"
	if _, err := cfg.FeeCollectorID(); !errors.Is(err, config.ErrInvalidAccount) {
		t.Errorf("got %v, want ErrInvalidAccount", err)
	}
}

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyBaseConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := []byte(`
[server]
listen_addr = "0.0.0.0:9090"
brand_name = "LCX Pool"

[registration]
open = false
bcrypt_cost = 12

[wallet]
address_prefix = "LC"
address_length = 0

[rewards]
round_reward_coins = 250.0

[pool]
events_addr = "tcp://127.0.0.1:28332"

[storage]
timeout_ms = 2500

[logging]
level = "DEBUG"
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, ok, err := loadTOMLFile[baseFileConfig](path)
	if err != nil || !ok {
		t.Fatalf("loadTOMLFile: ok=%v err=%v", ok, err)
	}
	cfg := defaultConfig()
	applyBaseConfig(&cfg, *fc)

	if cfg.ListenAddr != "0.0.0.0:9090" {
		t.Fatalf("listen_addr: got %q", cfg.ListenAddr)
	}
	if cfg.BrandName != "LCX Pool" {
		t.Fatalf("brand_name: got %q", cfg.BrandName)
	}
	if cfg.RegistrationOpen {
		t.Fatalf("open = false must carry through as a real boolean")
	}
	if cfg.BcryptCost != 12 {
		t.Fatalf("bcrypt_cost: got %d", cfg.BcryptCost)
	}
	if cfg.WalletAddressLength != 0 {
		t.Fatalf("address_length = 0 should disable the check, got %d", cfg.WalletAddressLength)
	}
	if cfg.RoundRewardCoins != 250 {
		t.Fatalf("round_reward_coins: got %v", cfg.RoundRewardCoins)
	}
	if cfg.PoolEventsAddr != "tcp://127.0.0.1:28332" {
		t.Fatalf("events_addr: got %q", cfg.PoolEventsAddr)
	}
	if cfg.StorageTimeoutMS != 2500 {
		t.Fatalf("timeout_ms: got %d", cfg.StorageTimeoutMS)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level should be lowercased, got %q", cfg.LogLevel)
	}
}

func TestLoadTOMLFileMissing(t *testing.T) {
	_, ok, err := loadTOMLFile[baseFileConfig](filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if ok {
		t.Fatalf("missing file reported as loaded")
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.SessionSecret = "secret"
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("defaults with a secret should validate: %v", err)
	}

	bad := cfg
	bad.SessionSecret = " "
	if err := validateConfig(bad); err == nil {
		t.Fatalf("blank session secret must be rejected")
	}

	bad = cfg
	bad.ListenAddr = "no-port"
	if err := validateConfig(bad); err == nil {
		t.Fatalf("listen addr without port must be rejected")
	}

	bad = cfg
	bad.BcryptCost = 99
	if err := validateConfig(bad); err == nil {
		t.Fatalf("out-of-range bcrypt cost must be rejected")
	}
}

func TestGenerateSessionSecret(t *testing.T) {
	a := generateSessionSecret()
	b := generateSessionSecret()
	if len(a) != 64 {
		t.Fatalf("secret length: got %d want 64 hex chars", len(a))
	}
	if a == b {
		t.Fatalf("secrets must not repeat")
	}
}

func TestEffectiveConfigOmitsSecrets(t *testing.T) {
	cfg := defaultConfig()
	cfg.SessionSecret = "super-secret-session-value"
	cfg.DiscordBotToken = "super-secret-discord-token"
	out := cfg.Effective()
	if strings.Contains(out, "super-secret") {
		t.Fatalf("effective config leaked a secret: %s", out)
	}
}

func TestWriteSecretsFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "secrets.toml")
	if err := writeSecretsFile(path, secretsConfig{SessionSecret: "abc"}); err != nil {
		t.Fatalf("writeSecretsFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("secrets file mode: got %o want 600", info.Mode().Perm())
	}
}

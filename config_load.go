package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
)

type baseFileConfig struct {
	Server       serverFileConfig       `toml:"server"`
	Registration registrationFileConfig `toml:"registration"`
	Wallet       walletFileConfig       `toml:"wallet"`
	Rewards      rewardsFileConfig      `toml:"rewards"`
	Pool         poolFileConfig         `toml:"pool"`
	Discord      discordFileConfig      `toml:"discord"`
	Storage      storageFileConfig      `toml:"storage"`
	Logging      loggingFileConfig      `toml:"logging"`
}

type serverFileConfig struct {
	ListenAddr string `toml:"listen_addr"`
	BrandName  string `toml:"brand_name"`
	PublicURL  string `toml:"public_url"`
	DataDir    string `toml:"data_dir"`
}

type registrationFileConfig struct {
	Open            *bool `toml:"open"`
	BcryptCost      *int  `toml:"bcrypt_cost"`
	SessionTTLHours *int  `toml:"session_ttl_hours"`
}

type walletFileConfig struct {
	AddressPrefix string `toml:"address_prefix"`
	AddressLength *int   `toml:"address_length"`
}

type rewardsFileConfig struct {
	RoundRewardCoins *float64 `toml:"round_reward_coins"`
}

type poolFileConfig struct {
	EventsAddr string `toml:"events_addr"`
}

type discordFileConfig struct {
	NotifyChannelID string `toml:"notify_channel_id"`
}

type storageFileConfig struct {
	TimeoutMS *int `toml:"timeout_ms"`
}

type loggingFileConfig struct {
	Level string `toml:"level"`
}

type secretsConfig struct {
	SessionSecret   string `toml:"session_secret"`
	DiscordBotToken string `toml:"discord_token"`
}

var exampleConfig = []byte(`# SenseiNode dashboard configuration.

[server]
listen_addr = ":8080"
brand_name = "SenseiNode"
# public_url = "https://pool.example.org"

[registration]
open = true
bcrypt_cost = 10
session_ttl_hours = 72

[wallet]
address_prefix = "LC"
address_length = 98

[rewards]
round_reward_coins = 500.0

[pool]
# ZMQ SUB endpoint of the pool core event publisher. Empty disables ingest.
# events_addr = "tcp://127.0.0.1:28332"

[discord]
# notify_channel_id = "123456789012345678"

[storage]
timeout_ms = 5000

[logging]
level = "info"
`)

func loadConfig(configPath, secretsPath string) (Config, string) {
	cfg := defaultConfig()

	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if fc, ok, err := loadTOMLFile[baseFileConfig](configPath); err != nil {
		fatal("config file", err, "path", configPath)
	} else if ok {
		applyBaseConfig(&cfg, *fc)
	} else {
		if err := writeExampleConfig(configPath); err != nil {
			fatal("write example config", err, "path", configPath)
		}
		fmt.Printf("\n📝 Configuration file was missing and has been created: %s\n", configPath)
		fmt.Printf("   Review it, then restart %s.\n\n", softwareName)
		os.Exit(1)
	}

	if secretsPath == "" {
		secretsPath = filepath.Join(cfg.DataDir, "config", "secrets.toml")
	}
	ensureSecretFilePermissions(secretsPath)
	if sc, ok, err := loadTOMLFile[secretsConfig](secretsPath); err != nil {
		fatal("secrets file", err, "path", secretsPath)
	} else if ok {
		applySecretsConfig(&cfg, *sc)
	}

	if strings.TrimSpace(cfg.SessionSecret) == "" {
		cfg.SessionSecret = generateSessionSecret()
		if err := writeSecretsFile(secretsPath, secretsConfig{
			SessionSecret:   cfg.SessionSecret,
			DiscordBotToken: cfg.DiscordBotToken,
		}); err != nil {
			fatal("write secrets file", err, "path", secretsPath)
		}
		logger.Info("generated session secret", "path", secretsPath)
	}

	return cfg, secretsPath
}

func loadTOMLFile[T any](path string) (*T, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg T
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, true, nil
}

func applyBaseConfig(cfg *Config, fc baseFileConfig) {
	if fc.Server.ListenAddr != "" {
		addr := strings.TrimSpace(fc.Server.ListenAddr)
		if addr != "" && !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		cfg.ListenAddr = addr
	}
	if fc.Server.BrandName != "" {
		cfg.BrandName = strings.TrimSpace(fc.Server.BrandName)
	}
	if fc.Server.PublicURL != "" {
		cfg.PublicURL = strings.TrimSpace(fc.Server.PublicURL)
	}
	if fc.Server.DataDir != "" {
		cfg.DataDir = strings.TrimSpace(fc.Server.DataDir)
	}
	if fc.Registration.Open != nil {
		cfg.RegistrationOpen = *fc.Registration.Open
	}
	if fc.Registration.BcryptCost != nil {
		cfg.BcryptCost = *fc.Registration.BcryptCost
	}
	if fc.Registration.SessionTTLHours != nil {
		cfg.SessionTTLHours = *fc.Registration.SessionTTLHours
	}
	if fc.Wallet.AddressPrefix != "" {
		cfg.WalletAddressPrefix = strings.TrimSpace(fc.Wallet.AddressPrefix)
	}
	if fc.Wallet.AddressLength != nil {
		cfg.WalletAddressLength = *fc.Wallet.AddressLength
	}
	if fc.Rewards.RoundRewardCoins != nil {
		cfg.RoundRewardCoins = *fc.Rewards.RoundRewardCoins
	}
	if fc.Pool.EventsAddr != "" {
		cfg.PoolEventsAddr = strings.TrimSpace(fc.Pool.EventsAddr)
	}
	if fc.Discord.NotifyChannelID != "" {
		cfg.DiscordNotifyChannelID = strings.TrimSpace(fc.Discord.NotifyChannelID)
	}
	if fc.Storage.TimeoutMS != nil {
		cfg.StorageTimeoutMS = *fc.Storage.TimeoutMS
	}
	if fc.Logging.Level != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(fc.Logging.Level))
	}
}

func applySecretsConfig(cfg *Config, sc secretsConfig) {
	if sc.SessionSecret != "" {
		cfg.SessionSecret = strings.TrimSpace(sc.SessionSecret)
	}
	if sc.DiscordBotToken != "" {
		cfg.DiscordBotToken = strings.TrimSpace(sc.DiscordBotToken)
	}
}

func writeExampleConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, exampleConfig, 0o644)
}

func writeSecretsFile(path string, sc secretsConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func ensureSecretFilePermissions(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("secrets file stat failed", "path", path, "error", err)
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	if info.Mode().Perm()&0o077 == 0 {
		return
	}
	if err := os.Chmod(path, 0o600); err != nil {
		logger.Warn("secrets file chmod failed", "path", path, "error", err)
		return
	}
	logger.Warn("secrets file permissions tightened", "path", path, "mode", "0600")
}

package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"
)

const defaultDataDir = "data"

type Config struct {
	// Server address for the dashboard HTTP listener.
	ListenAddr string

	// Branding.
	BrandName string
	PublicURL string // canonical URL for redirects/cookies

	// Registration policy.
	RegistrationOpen bool
	BcryptCost       int

	// Wallet address shape for the configured chain.
	WalletAddressPrefix string
	WalletAddressLength int // 0 disables the exact-length check

	// Sessions.
	SessionSecret   string // store in secrets.toml
	SessionTTLHours int

	// Reward display: coins distributed per round, used for the payout
	// estimate shown on the dashboard.
	RoundRewardCoins float64

	// Pool core event feed (ZMQ SUB endpoint; empty disables ingest).
	PoolEventsAddr string

	// Discord integration.
	DiscordBotToken        string // store in secrets.toml
	DiscordNotifyChannelID string

	StorageTimeoutMS int

	DataDir  string
	LogLevel string
}

func defaultConfig() Config {
	return Config{
		ListenAddr:          ":8080",
		BrandName:           softwareName,
		RegistrationOpen:    true,
		BcryptCost:          10,
		WalletAddressPrefix: "LC",
		WalletAddressLength: 98,
		SessionTTLHours:     72,
		RoundRewardCoins:    500,
		StorageTimeoutMS:    5000,
		DataDir:             defaultDataDir,
		LogLevel:            "info",
	}
}

func defaultConfigPath() string {
	return filepath.Join(defaultDataDir, "config", "config.toml")
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return errors.New("listen_addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr %q: %w", cfg.ListenAddr, err)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return fmt.Errorf("bcrypt_cost %d out of range [4,31]", cfg.BcryptCost)
	}
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return errors.New("session_secret is required (generated into secrets.toml on first boot)")
	}
	if cfg.SessionTTLHours <= 0 {
		return errors.New("session_ttl_hours must be positive")
	}
	if cfg.RoundRewardCoins < 0 {
		return errors.New("round_reward_coins must not be negative")
	}
	if cfg.StorageTimeoutMS <= 0 {
		return errors.New("storage_timeout_ms must be positive")
	}
	if cfg.WalletAddressLength < 0 {
		return errors.New("wallet_address_length must not be negative")
	}
	return nil
}

func (c Config) storageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutMS) * time.Millisecond
}

func (c Config) sessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// Effective returns a log-safe summary of the running configuration.
// Secrets are never included.
func (c Config) Effective() string {
	return fmt.Sprintf(
		"listen_addr=%s data_dir=%s registration_open=%t bcrypt_cost=%d session_ttl_hours=%d pool_events_addr=%s discord=%t",
		c.ListenAddr, c.DataDir, c.RegistrationOpen, c.BcryptCost, c.SessionTTLHours, c.PoolEventsAddr,
		c.DiscordBotToken != "",
	)
}

func generateSessionSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fatal("session secret entropy", err)
	}
	return hex.EncodeToString(buf)
}
